package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string `env:"PORT,default=8080"`
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	DBDriver   string `env:"DB_DRIVER,default=postgres"`
	DBHost     string `env:"DB_HOST,default=localhost"`
	DBPort     string `env:"DB_PORT,default=5432"`
	DBUser     string `env:"DB_USER,default=postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME,default=market_pulse"`
	DBSSLMode  string `env:"DB_SSLMODE,default=disable"`
	SQLitePath string `env:"SQLITE_PATH,default=data/market.db"`

	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     string `env:"REDIS_PORT,default=6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	MongoURI      string `env:"MONGODB_URI"`
	MongoDatabase string `env:"MONGODB_DATABASE,default=market_pulse"`

	Upstream UpstreamConfig
	Engine   EngineConfig
	SMTP     SMTPConfig
}

// UpstreamConfig holds the pricing provider settings
type UpstreamConfig struct {
	CoinGeckoBaseURL  string        `env:"COINGECKO_BASE_URL,default=https://api.coingecko.com/api/v3"`
	CoinGeckoPageSize int           `env:"COINGECKO_PAGE_SIZE,default=100"`
	FinnhubBaseURL    string        `env:"FINNHUB_BASE_URL,default=https://finnhub.io/api/v1"`
	FinnhubAPIKey     string        `env:"FINNHUB_API_KEY"`
	EquityBatchSize   int           `env:"EQUITY_BATCH_SIZE,default=5"`
	EquityBatchDelay  time.Duration `env:"EQUITY_BATCH_DELAY,default=1s"`
	EquityMinResults  int           `env:"EQUITY_MIN_RESULTS,default=10"`
	EquityRatePerMin  int           `env:"EQUITY_RATE_PER_MINUTE,default=60"`
	Timeout           time.Duration `env:"UPSTREAM_TIMEOUT,default=8s"`
}

// EngineConfig holds scheduling and fan-out settings
type EngineConfig struct {
	IngestInterval     time.Duration `env:"INGEST_INTERVAL,default=10s"`
	TickTimeout        time.Duration `env:"TICK_TIMEOUT,default=60s"`
	AlertInterval      time.Duration `env:"ALERT_INTERVAL,default=5m"`
	CacheTTL           time.Duration `env:"CACHE_TTL,default=5m"`
	BroadcastLimit     int           `env:"BROADCAST_LIMIT,default=50"`
	NotifyWorkers      int           `env:"NOTIFY_WORKERS,default=4"`
	NotifyQueueSize    int           `env:"NOTIFY_QUEUE_SIZE,default=256"`
	NotifyTimeout      time.Duration `env:"NOTIFY_TIMEOUT,default=15s"`
	TriggeredRetention time.Duration `env:"TRIGGERED_RETENTION,default=720h"`
	CleanupAt          string        `env:"CLEANUP_AT,default=03:00"`
	MaxRealtimeClients int           `env:"WS_MAX_CLIENTS,default=100"`
	APIRatePerMinute   int           `env:"API_RATE_PER_MINUTE,default=120"`
}

// SMTPConfig holds the mail transport settings
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT,default=465"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

// LoadConfig loads environment variables, reading .env first when present
func LoadConfig(ctx context.Context) (*Config, error) {
	envFileErr := godotenv.Load()

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if envFileErr != nil && !os.IsNotExist(envFileErr) {
		return &cfg, fmt.Errorf("failed to read .env: %w", envFileErr)
	}
	return &cfg, nil
}

// RedisAddr returns the redis address, or "" when redis is not configured
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}

type gormZapWriter struct {
	logger *zap.Logger
}

func (w gormZapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// gormLogLevel follows LOG_LEVEL, capped at errors in production
func gormLogLevel(cfg *Config) logger.LogLevel {
	if cfg.Environment == "production" {
		return logger.Error
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}

func newGormLogger(log *zap.Logger, cfg *Config) logger.Interface {
	return logger.New(
		gormZapWriter{logger: log.Named("gorm")},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogLevel(cfg),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// InitDB initializes database connection
func InitDB(cfg *Config, log *zap.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{Logger: newGormLogger(log, cfg)}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		log.Info("connecting to sqlite", zap.String("path", cfg.SQLitePath))
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		log.Info("connecting to postgres",
			zap.String("host", maskHost(cfg.DBHost)),
			zap.String("port", cfg.DBPort),
			zap.String("user", cfg.DBUser),
			zap.String("dbname", cfg.DBName),
		)
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
		)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("database connection verified")
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}
