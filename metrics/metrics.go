package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion tick results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

var (
	IngestionTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_ticks_total",
		Help: "Ingestion cycles by asset class and result.",
	}, []string{"asset_class", "result"})

	AlertsTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_triggered_total",
		Help: "Alerts that crossed their threshold.",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notification delivery attempts by channel and result.",
	}, []string{"channel", "result"})

	RealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_clients",
		Help: "Connected websocket clients.",
	})
)
