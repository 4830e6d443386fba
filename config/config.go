// Package config loads runtime configuration from the environment and
// builds the process logger.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/cartledger/ledger"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppAddr         string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout  time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// StoreDriver selects the ledger store: sqlite or postgres.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/cartledger.db"`
	PGDSN       string `envconfig:"PG_DSN"`

	// RedisAddr enables the distributed customer lock when set.
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	LockTTL   time.Duration `envconfig:"LOCK_TTL" default:"30s"`

	RetryMaxTries        uint          `envconfig:"RETRY_MAX_TRIES" default:"3"`
	RetryInitialInterval time.Duration `envconfig:"RETRY_INITIAL_INTERVAL" default:"50ms"`

	RolloverScheduleEnabled bool          `envconfig:"ROLLOVER_SCHEDULE_ENABLED" default:"false"`
	RolloverCheckInterval   time.Duration `envconfig:"ROLLOVER_CHECK_INTERVAL" default:"1h"`
	RolloverParallelism     int           `envconfig:"ROLLOVER_PARALLELISM" default:"1"`

	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"600"`
	CORSOrigins        []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH must be provided for the sqlite driver")
		}
	case "postgres":
		if c.PGDSN == "" {
			return errors.New("PG_DSN must be provided for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want sqlite or postgres)", c.StoreDriver)
	}
	if c.RetryMaxTries == 0 {
		return errors.New("RETRY_MAX_TRIES must be at least 1")
	}
	if c.RolloverParallelism < 1 {
		return errors.New("ROLLOVER_PARALLELISM must be at least 1")
	}
	if c.RolloverScheduleEnabled && c.RolloverCheckInterval <= 0 {
		return errors.New("ROLLOVER_CHECK_INTERVAL must be positive")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return nil
}

// RetryPolicy converts the retry settings for the ledger services.
func (c *Config) RetryPolicy() ledger.RetryPolicy {
	p := ledger.DefaultRetryPolicy()
	p.MaxTries = c.RetryMaxTries
	if c.RetryInitialInterval > 0 {
		p.InitialInterval = c.RetryInitialInterval
	}
	return p
}

// DistributedLocking reports whether customer locks go through Redis.
func (c *Config) DistributedLocking() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

// NewLogger returns a zap logger: JSON when LOG_FORMAT=json, console otherwise.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg != nil && cfg.LogFormat == "json" {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "time"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if cfg != nil && cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}
