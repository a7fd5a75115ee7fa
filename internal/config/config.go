package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	SyncModeDirect = "direct"
	SyncModeKafka  = "kafka"
)

type Config struct {
	App     App     `yaml:"app"`
	HTTP    HTTP    `yaml:"http"`
	Log     Log     `yaml:"log"`
	Mongo   Mongo   `yaml:"mongo"`
	Elastic Elastic `yaml:"elasticsearch"`
	Redis   Redis   `yaml:"redis"`
	Kafka   Kafka   `yaml:"kafka"`
	Sync    Sync    `yaml:"sync"`
	Metrics Metrics `yaml:"metrics"`
}

type App struct {
	Name    string `yaml:"name" env:"APP_NAME" env-default:"messages-api"`
	Version string `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
}

type HTTP struct {
	Port          string        `yaml:"port" env:"PORT" env-default:"4000"`
	HealthTimeout time.Duration `yaml:"health_timeout" env:"HEALTH_TIMEOUT" env-default:"5s"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type Mongo struct {
	URI        string `yaml:"uri" env:"MONGO_URI" env-required:"true"`
	Collection string `yaml:"collection" env:"MONGO_COLLECTION" env-default:"messages"`
}

type Elastic struct {
	Host  string `yaml:"host" env:"ELASTICSEARCH_HOST" env-default:"http://localhost:9200"`
	Index string `yaml:"index" env:"ELASTICSEARCH_INDEX" env-default:"messages"`
}

type Redis struct {
	// Empty Addr disables the list cache and idempotency keys.
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"30s"`
}

type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	Topic       string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"messages-events"`
	GroupID     string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"messages-indexer"`
	StartOffset string   `yaml:"start_offset" env:"KAFKA_START_OFFSET" env-default:"earliest"`
}

type Sync struct {
	Mode           string        `yaml:"mode" env:"SYNC_MODE" env-default:"direct"`
	Timeout        time.Duration `yaml:"timeout" env:"SYNC_TIMEOUT" env-default:"3s"`
	Lease          time.Duration `yaml:"lease" env:"SYNC_LEASE" env-default:"1m"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"SYNC_POLL_INTERVAL" env-default:"2s"`
	BatchSize      int           `yaml:"batch_size" env:"SYNC_BATCH_SIZE" env-default:"10"`
	EmbeddedWorker bool          `yaml:"embedded_worker" env:"SYNC_EMBEDDED_WORKER" env-default:"true"`
	ReindexCron    string        `yaml:"reindex_cron" env:"REINDEX_CRON"`
	ReindexRate    float64       `yaml:"reindex_rate" env:"REINDEX_RATE" env-default:"200"`
}

type Metrics struct {
	Port string `yaml:"port" env:"METRICS_PORT" env-default:"9091"`
}

func New() (*Config, error) {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// fallback to env vars if file not found
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	} else {
		// Allow env vars to override config file
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	c.Sync.Mode = strings.ToLower(strings.TrimSpace(c.Sync.Mode))
	switch c.Sync.Mode {
	case SyncModeDirect, SyncModeKafka:
	default:
		return fmt.Errorf("unknown SYNC_MODE %q", c.Sync.Mode)
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Sync.ReindexRate <= 0 {
		return fmt.Errorf("REINDEX_RATE must be positive, got %v", c.Sync.ReindexRate)
	}
	if c.Sync.Lease <= c.Sync.Timeout {
		return fmt.Errorf("SYNC_LEASE (%s) must exceed SYNC_TIMEOUT (%s)", c.Sync.Lease, c.Sync.Timeout)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
