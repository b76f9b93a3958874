package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market_pulse_backend/controllers"
	"market_pulse_backend/middleware"
)

// Handlers bundles the controllers exposed over HTTP
type Handlers struct {
	Market        *controllers.MarketController
	Alerts        *controllers.AlertController
	Notifications *controllers.NotificationController
	Realtime      *controllers.RealtimeController
}

// Options configures route-level middleware
type Options struct {
	JWTSecret   string
	RateLimiter *middleware.RateLimiter
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, h Handlers, opts Options) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.JWTAuthMiddleware(opts.JWTSecret)
	limited := func(c *gin.Context) { c.Next() }
	if opts.RateLimiter != nil {
		limited = middleware.RateLimitMiddleware(opts.RateLimiter)
	}

	// Realtime sessions
	router.GET("/ws", auth, h.Realtime.Connect)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Market routes (public)
		market := api.Group("/market", limited)
		{
			market.GET("/status", h.Market.GetStatus)
			market.GET("/:class", h.Market.GetMarket)
			market.GET("/:class/search", h.Market.SearchMarket)
			market.GET("/:class/assets/:id", h.Market.GetAsset)
		}

		// Alert routes
		alerts := api.Group("/alerts", auth, limited)
		{
			alerts.POST("", h.Alerts.CreateAlert)
			alerts.GET("", h.Alerts.GetAlerts)
			alerts.DELETE("/triggered", h.Alerts.DeleteTriggeredAlerts)
			alerts.GET("/:id", h.Alerts.GetAlert)
			alerts.PATCH("/:id", h.Alerts.UpdateAlert)
			alerts.DELETE("/:id", h.Alerts.DeleteAlert)
		}

		// In-app notification routes
		notifications := api.Group("/notifications", auth, limited)
		{
			notifications.GET("", h.Notifications.GetNotifications)
			notifications.POST("/read-all", h.Notifications.MarkAllRead)
			notifications.POST("/:id/read", h.Notifications.MarkRead)
		}
	}
}
