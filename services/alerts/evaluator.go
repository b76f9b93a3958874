package alerts

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market_pulse_backend/metrics"
	"market_pulse_backend/models"
)

// PriceResolver returns an authoritative price for one asset
type PriceResolver interface {
	ResolvePrice(ctx context.Context, class models.AssetClass, id string) (decimal.Decimal, error)
}

// Dispatcher receives each newly triggered alert exactly once
type Dispatcher interface {
	Dispatch(ctx context.Context, alert models.Alert, price decimal.Decimal) error
}

// EvaluationResult summarizes one evaluation tick
type EvaluationResult struct {
	Alerts    int `json:"alerts"`
	Lookups   int `json:"lookups"`
	Checked   int `json:"checked"`
	Triggered int `json:"triggered"`
	Skipped   int `json:"skipped"`
}

// Evaluator matches stored alerts against current prices
type Evaluator struct {
	repo       Repository
	prices     PriceResolver
	dispatcher Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func NewEvaluator(repo Repository, prices PriceResolver, dispatcher Dispatcher, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		repo:       repo,
		prices:     prices,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Evaluate runs one tick over every active, untriggered alert.
// Each distinct asset is priced once; unresolvable assets are skipped.
func (e *Evaluator) Evaluate(ctx context.Context) (EvaluationResult, error) {
	var result EvaluationResult

	pending, err := e.repo.ListEvaluable(ctx)
	if err != nil {
		return result, err
	}
	result.Alerts = len(pending)
	if len(pending) == 0 {
		return result, nil
	}

	groups := make(map[models.AssetKey][]models.Alert)
	var keys []models.AssetKey
	for _, alert := range pending {
		key := alert.Key()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], alert)
	}

	for _, key := range keys {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		group := groups[key]
		result.Lookups++
		price, err := e.prices.ResolvePrice(ctx, key.Class, key.ID)
		if err != nil {
			result.Skipped += len(group)
			e.logger.Warn("skipping alerts, price unresolvable",
				zap.String("asset_class", string(key.Class)),
				zap.String("asset_id", key.ID),
				zap.Int("alerts", len(group)),
				zap.Error(err))
			continue
		}

		for _, alert := range group {
			e.apply(ctx, alert, price, &result)
		}
	}

	e.logger.Info("alert evaluation complete",
		zap.Int("alerts", result.Alerts),
		zap.Int("lookups", result.Lookups),
		zap.Int("triggered", result.Triggered),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (e *Evaluator) apply(ctx context.Context, alert models.Alert, price decimal.Decimal, result *EvaluationResult) {
	now := e.now().UTC()

	if !alert.Crossed(price) {
		if err := e.repo.RecordCheck(ctx, alert.ID, price, now); err != nil {
			e.logger.Warn("failed to record alert check", zap.String("alert_id", alert.ID), zap.Error(err))
			return
		}
		result.Checked++
		return
	}

	won, err := e.repo.MarkTriggered(ctx, alert.ID, price, now)
	if err != nil {
		e.logger.Error("failed to mark alert triggered", zap.String("alert_id", alert.ID), zap.Error(err))
		return
	}
	if !won {
		// Triggered or deleted since it was loaded
		return
	}

	result.Triggered++
	metrics.AlertsTriggered.Inc()

	alert.Triggered = true
	alert.TriggeredAt = &now
	alert.LastCheckedAt = &now
	alert.LastObservedPrice = decimal.NewNullDecimal(price)

	e.logger.Info("alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("owner_id", alert.OwnerID),
		zap.String("asset_id", alert.AssetID),
		zap.String("direction", string(alert.Direction)),
		zap.String("target", alert.TargetPrice.String()),
		zap.String("price", price.String()))

	if e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Dispatch(ctx, alert, price); err != nil {
		e.logger.Error("failed to hand off triggered alert",
			zap.String("alert_id", alert.ID), zap.Error(err))
	}
}

// Cleanup deletes triggered alerts older than retention
func (e *Evaluator) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := e.now().UTC().Add(-retention)
	n, err := e.repo.DeleteTriggeredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("expired triggered alerts removed", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
