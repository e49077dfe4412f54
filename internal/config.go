package internal

import (
	"chat-gateway/pipeline"
	"chat-gateway/transport/ws"
	"fmt"
	"strings"
	"time"
)

const (
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

type Config struct {
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`
	Host      string `env:"HOST,default=0.0.0.0"`
	Port      int    `env:"PORT,required=true"`
	GrpcPort  int    `env:"GRPC_PORT,required=true"`
	DebugPort *int   `env:"DEBUG_PORT"`

	JwtSecret        string `env:"JWT_SECRET"`
	JwtPublicKeyFile string `env:"JWT_PUBLIC_KEY_FILE"`
	JwtIssuer        string `env:"JWT_ISSUER"`
	JwtAudience      string `env:"JWT_AUDIENCE,required=true"`
	AuthzRulesFile   string `env:"AUTHZ_RULES_FILE"`
	AllowedOrigins   string `env:"ALLOWED_ORIGINS"`

	StoreDriver    string `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	PostgresDSN    string `env:"POSTGRES_DSN"`

	PersistQueueSize     int           `env:"PERSIST_QUEUE_SIZE,default=1024"`
	PersistWorkers       int           `env:"PERSIST_WORKERS,default=4"`
	PersistMaxAttempts   int           `env:"PERSIST_MAX_ATTEMPTS,default=5"`
	PersistBackoffBase   time.Duration `env:"PERSIST_BACKOFF_BASE,default=100ms"`
	PersistBackoffMax    time.Duration `env:"PERSIST_BACKOFF_MAX,default=5s"`
	PersistSubmitTimeout time.Duration `env:"PERSIST_SUBMIT_TIMEOUT,default=250ms"`
	PersistDrainTimeout  time.Duration `env:"PERSIST_DRAIN_TIMEOUT,default=5s"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=100ms"`
	SendRatePerSecond    float64       `env:"SEND_RATE_PER_SECOND,default=20"`
	SendBurst            int           `env:"SEND_BURST,default=40"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	StatsInterval        time.Duration `env:"STATS_INTERVAL,default=15s"`
	HealthInterval       time.Duration `env:"HEALTH_INTERVAL,default=5s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate checks the settings that depend on each other.
func (c Config) Validate() error {
	if c.JwtSecret == "" && c.JwtPublicKeyFile == "" {
		return fmt.Errorf("one of JWT_SECRET or JWT_PUBLIC_KEY_FILE is required")
	}
	switch c.StoreDriver {
	case StoreBadger:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required with STORE_DRIVER=%s", StoreBadger)
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required with STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.PersistQueueSize <= 0 || c.PersistWorkers <= 0 || c.PersistMaxAttempts <= 0 {
		return fmt.Errorf("persistence queue size, workers and attempts must be positive")
	}
	if c.PersistBackoffMax <= 0 || c.PersistDrainTimeout <= 0 {
		return fmt.Errorf("PERSIST_BACKOFF_MAX and PERSIST_DRAIN_TIMEOUT must be positive")
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	}
	return nil
}

func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		QueueSize:     c.PersistQueueSize,
		Workers:       c.PersistWorkers,
		MaxAttempts:   c.PersistMaxAttempts,
		BackoffBase:   c.PersistBackoffBase,
		BackoffMax:    c.PersistBackoffMax,
		SubmitTimeout: c.PersistSubmitTimeout,
		DrainTimeout:  c.PersistDrainTimeout,
	}
}

func (c Config) Transport() ws.Config {
	cfg := ws.DefaultConfig()
	cfg.BufferSize = c.ConnectionBufferSize
	cfg.DeliveryTimeout = c.DeliveryTimeout
	cfg.SendRatePerSecond = c.SendRatePerSecond
	cfg.SendBurst = c.SendBurst
	if c.AllowedOrigins != "" {
		cfg.AllowedOrigins = strings.Split(c.AllowedOrigins, ",")
	}
	return cfg
}
