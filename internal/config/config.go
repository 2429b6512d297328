package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	// Ethereum node configuration
	Ethereum EthereumConfig

	// Primary ledger database configuration
	Database DatabaseConfig

	// Mirror store configuration (storage migration window)
	Mirror MirrorConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Indexer configuration
	Indexer IndexerConfig

	// Logging configuration
	Log LogConfig

	// Error reporting configuration
	Sentry SentryConfig
}

// EthereumConfig holds Ethereum node connection settings
type EthereumConfig struct {
	RPCURL         string        `envconfig:"ETH_RPC_URL" default:"http://localhost:8545"`
	ChainID        int64         `envconfig:"ETH_CHAIN_ID" default:"1"`
	RequestTimeout time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"ETH_MAX_RETRIES" default:"3"`
	RetryDelay     time.Duration `envconfig:"ETH_RETRY_DELAY" default:"1s"`
	MaxRetryDelay  time.Duration `envconfig:"ETH_MAX_RETRY_DELAY" default:"30s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"indexer"`
	Password        string        `envconfig:"DB_PASSWORD" default:"indexer"`
	Name            string        `envconfig:"DB_NAME" default:"equity_ledger"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// MirrorConfig holds settings for the secondary SQLite store
type MirrorConfig struct {
	Enabled     bool   `envconfig:"MIRROR_ENABLED" default:"false"`
	Path        string `envconfig:"MIRROR_SQLITE_PATH" default:"mirror.db"`
	QueueSize   int    `envconfig:"MIRROR_QUEUE_SIZE" default:"10000"`
	BusyTimeout int    `envconfig:"MIRROR_BUSY_TIMEOUT_MS" default:"30000"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host             string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port             int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout      time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout     time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout  time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS     int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
	CacheTTL         time.Duration `envconfig:"API_CACHE_TTL" default:"30s"`
	HistoricalTTL    time.Duration `envconfig:"API_HISTORICAL_CACHE_TTL" default:"1h"`
	MaxActivityLimit int           `envconfig:"API_MAX_ACTIVITY_LIMIT" default:"500"`

	// HistoricalCacheLag keeps snapshots this close to the cursor out of the
	// cache; match INDEXER_RESUME_OVERLAP
	HistoricalCacheLag int64 `envconfig:"API_HISTORICAL_CACHE_LAG" default:"32"`
}

// IndexerConfig holds indexer-specific settings
type IndexerConfig struct {
	MetricsPort        int           `envconfig:"INDEXER_METRICS_PORT" default:"8080"`
	BlockConfirmations int           `envconfig:"INDEXER_BLOCK_CONFIRMATIONS" default:"2"`
	PollInterval       time.Duration `envconfig:"INDEXER_POLL_INTERVAL" default:"4s"`
	DiscoveryInterval  time.Duration `envconfig:"INDEXER_DISCOVERY_INTERVAL" default:"12s"`
	BackfillBatchSize  int           `envconfig:"INDEXER_BACKFILL_BATCH_SIZE" default:"2000"`
	BackfillRetryDelay time.Duration `envconfig:"INDEXER_BACKFILL_RETRY_DELAY" default:"10s"`
	ResumeOverlap      int64         `envconfig:"INDEXER_RESUME_OVERLAP" default:"32"`
	WorkerCount        int           `envconfig:"INDEXER_WORKER_COUNT" default:"4"`
	UpdateQueueSize    int           `envconfig:"INDEXER_UPDATE_QUEUE_SIZE" default:"1024"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// SentryConfig holds error reporting settings
type SentryConfig struct {
	DSN         string `envconfig:"SENTRY_DSN" default:""`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load loads configuration from environment variables. When ENV_FILE is set,
// that file is loaded first; variables already present in the environment win.
func Load() (*Config, error) {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// DSN returns the SQLite connection string for the mirror store
func (c *MirrorConfig) DSN() string {
	return fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d",
		c.Path, c.BusyTimeout,
	)
}
