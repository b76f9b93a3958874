package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"market_pulse_backend/config"
	"market_pulse_backend/controllers"
	"market_pulse_backend/logger"
	"market_pulse_backend/middleware"
	"market_pulse_backend/models"
	"market_pulse_backend/routes"
	"market_pulse_backend/scheduler"
	"market_pulse_backend/services/alerts"
	"market_pulse_backend/services/fetcher"
	"market_pulse_backend/services/notify"
	"market_pulse_backend/services/pricecache"
	"market_pulse_backend/services/realtime"
)

func main() {
	ctx := context.Background()

	cfg, cfgErr := config.LoadConfig(ctx)
	if cfg == nil {
		panic(cfgErr)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	if cfgErr != nil {
		log.Warn("config load issue", zap.Error(cfgErr))
	}

	log.Info("market pulse backend starting", zap.String("environment", cfg.Environment))
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg, log)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	if err := models.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	log.Info("database migrations completed")

	// Price cache
	store, closeStore := newCacheStore(ctx, cfg, log)
	defer closeStore()
	cache := pricecache.New(store, pricecache.Options{
		TTL:          cfg.Engine.CacheTTL,
		FetchTimeout: cfg.Upstream.Timeout,
	}, log.Named("pricecache"))

	cryptoFetcher := fetcher.NewCryptoFetcher(fetcher.CryptoOptions{
		BaseURL:  cfg.Upstream.CoinGeckoBaseURL,
		PageSize: cfg.Upstream.CoinGeckoPageSize,
		Timeout:  cfg.Upstream.Timeout,
	}, log.Named("crypto"))
	equityFetcher := fetcher.NewEquityFetcher(fetcher.EquityOptions{
		BaseURL:       cfg.Upstream.FinnhubBaseURL,
		APIKey:        cfg.Upstream.FinnhubAPIKey,
		Timeout:       cfg.Upstream.Timeout,
		BatchSize:     cfg.Upstream.EquityBatchSize,
		BatchDelay:    cfg.Upstream.EquityBatchDelay,
		MinResults:    cfg.Upstream.EquityMinResults,
		RatePerMinute: cfg.Upstream.EquityRatePerMin,
	}, log.Named("equity"))
	cache.RegisterFetcher(models.AssetClassCrypto, cryptoFetcher)
	cache.RegisterFetcher(models.AssetClassEquity, equityFetcher)

	// Realtime hub
	hubCtx, stopHub := context.WithCancel(ctx)
	hub := realtime.NewHub(cfg.Engine.MaxRealtimeClients, log.Named("realtime"))
	go hub.Run(hubCtx)

	// Notifications
	inbox, closeInbox := newNotificationStore(ctx, cfg, db, log)
	defer closeInbox()
	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if _, ok := mailer.(*notify.SMTPMailer); !ok {
		log.Warn("SMTP_HOST not set, email notifications will fail")
	}
	dispatcher := notify.NewDispatcher(notify.Options{
		Workers:   cfg.Engine.NotifyWorkers,
		QueueSize: cfg.Engine.NotifyQueueSize,
		Timeout:   cfg.Engine.NotifyTimeout,
	}, log.Named("notify"),
		notify.NewInAppChannel(inbox, hub),
		notify.NewEmailChannel(mailer, notify.NewUserDirectory(db)),
	)
	dispatcher.Start(ctx)

	// Alerts
	alertRepo := alerts.NewGormRepository(db)
	alertService := alerts.NewService(alertRepo, cache, log.Named("alerts"))
	evaluator := alerts.NewEvaluator(alertRepo, cache, dispatcher, log.Named("evaluator"))

	// Scheduler
	jobScheduler := scheduler.NewScheduler(cache, hub, evaluator, scheduler.Options{
		IngestInterval:     cfg.Engine.IngestInterval,
		AlertInterval:      cfg.Engine.AlertInterval,
		TickTimeout:        cfg.Engine.TickTimeout,
		BroadcastLimit:     cfg.Engine.BroadcastLimit,
		TriggeredRetention: cfg.Engine.TriggeredRetention,
		CleanupAt:          cfg.Engine.CleanupAt,
	}, log.Named("scheduler"), cryptoFetcher, equityFetcher)
	cache.SetRefresher(jobScheduler)
	if err := jobScheduler.Start(); err != nil {
		log.Fatal("scheduler failed to start", zap.Error(err))
	}

	// HTTP
	limiter := middleware.NewRateLimiter(cfg.Engine.APIRatePerMinute, 0)
	limiter.StartCleanup(5 * time.Minute)
	defer limiter.Stop()

	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log.Named("http"), time.Second))

	setupHealthEndpoints(router, db)
	routes.SetupRoutes(router, routes.Handlers{
		Market:        controllers.NewMarketController(cache, jobScheduler, hub, dispatcher),
		Alerts:        controllers.NewAlertController(alertService),
		Notifications: controllers.NewNotificationController(inbox),
		Realtime:      controllers.NewRealtimeController(hub),
	}, routes.Options{
		JWTSecret:   cfg.JWTSecret,
		RateLimiter: limiter,
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down gracefully", zap.String("signal", sig.String()))

	// Stop producers before consumers
	jobScheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Warn("notification queue not drained", zap.Error(err))
	}
	stopHub()

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Info("server shutdown completed")
}

// newCacheStore picks redis when configured, memory otherwise
func newCacheStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (pricecache.Store, func()) {
	addr := cfg.RedisAddr()
	if addr == "" {
		log.Info("REDIS_HOST not set, using in-memory price cache")
		return pricecache.NewMemoryStore(), func() {}
	}

	store, err := pricecache.NewRedisStore(ctx, &redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn("redis unavailable, using in-memory price cache", zap.String("addr", addr), zap.Error(err))
		return pricecache.NewMemoryStore(), func() {}
	}
	log.Info("price cache stored in redis", zap.String("addr", addr))
	return store, func() { store.Close() }
}

// newNotificationStore picks mongodb when configured, the SQL database otherwise
func newNotificationStore(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) (notify.Store, func()) {
	if cfg.MongoURI == "" {
		return notify.NewGormStore(db), func() {}
	}

	store, err := notify.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	if err != nil {
		log.Warn("mongodb unavailable, storing notifications in SQL", zap.Error(err))
		return notify.NewGormStore(db), func() {}
	}
	return store, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Close(closeCtx)
	}
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine, db *gorm.DB) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Market Pulse API",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}
