// Package config loads process configuration from STOCKROOM_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	HTTPAddr string `env:"STOCKROOM_HTTP_ADDR" envDefault:":8080"`

	Storage   Storage
	Blob      Blob
	Notify    Notify
	Service   Service
	Log       Log
	Telemetry Telemetry
}

// Storage selects the persistent backend.
type Storage struct {
	Driver      string `env:"STOCKROOM_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"STOCKROOM_SQLITE_PATH"    envDefault:"./stockroom.db"`
	PostgresDSN string `env:"STOCKROOM_POSTGRES_DSN"`
}

// Blob selects where recognition artifacts and report archives are written.
type Blob struct {
	Driver      string `env:"STOCKROOM_BLOB_DRIVER"         envDefault:"fs"`
	FSRoot      string `env:"STOCKROOM_BLOB_FS_ROOT"        envDefault:"./blobdata"`
	S3Bucket    string `env:"STOCKROOM_BLOB_S3_BUCKET"`
	S3Region    string `env:"STOCKROOM_BLOB_S3_REGION"      envDefault:"us-east-1"`
	S3Endpoint  string `env:"STOCKROOM_BLOB_S3_ENDPOINT"`
	S3PathStyle bool   `env:"STOCKROOM_BLOB_S3_PATH_STYLE"`
}

// Notify configures the notification channels. Drivers is a comma separated
// subset of log, kafka and amqp.
type Notify struct {
	Drivers      []string      `env:"STOCKROOM_NOTIFY_DRIVERS"       envDefault:"log" envSeparator:","`
	Timeout      time.Duration `env:"STOCKROOM_NOTIFY_TIMEOUT"       envDefault:"3s"`
	QueueSize    int           `env:"STOCKROOM_NOTIFY_QUEUE_SIZE"    envDefault:"64"`
	KafkaBrokers []string      `env:"STOCKROOM_NOTIFY_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string        `env:"STOCKROOM_NOTIFY_KAFKA_TOPIC"   envDefault:"stockroom.notifications"`
	AMQPURL      string        `env:"STOCKROOM_NOTIFY_AMQP_URL"`
	AMQPExchange string        `env:"STOCKROOM_NOTIFY_AMQP_EXCHANGE" envDefault:"stockroom.notifications"`
}

// Service tunes the inventory and order core.
type Service struct {
	TxMaxAttempts     int           `env:"STOCKROOM_TX_MAX_ATTEMPTS"     envDefault:"5"`
	OperationTimeout  time.Duration `env:"STOCKROOM_OPERATION_TIMEOUT"   envDefault:"5s"`
	LowStockThreshold int           `env:"STOCKROOM_LOW_STOCK_THRESHOLD" envDefault:"10"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `env:"STOCKROOM_LOG_LEVEL"  envDefault:"info"`
	Format string `env:"STOCKROOM_LOG_FORMAT" envDefault:"json"`
}

// Telemetry configures metrics and tracing exporters.
type Telemetry struct {
	ServiceName  string `env:"STOCKROOM_SERVICE_NAME"   envDefault:"stockroom"`
	OTLPEndpoint string `env:"STOCKROOM_OTLP_ENDPOINT"`
	OTLPInsecure bool   `env:"STOCKROOM_OTLP_INSECURE"`
	Metrics      string `env:"STOCKROOM_METRICS"        envDefault:"prometheus"`
	// Tracing selects the span sink: otel (OTLP when an endpoint is set),
	// json (JSON lines on stderr) or none.
	Tracing string `env:"STOCKROOM_TRACING" envDefault:"otel"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("STOCKROOM_POSTGRES_DSN required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "memory", "fs":
	case "s3":
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("STOCKROOM_BLOB_S3_BUCKET required for s3 blob driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	for _, d := range c.Notify.Drivers {
		switch d {
		case "log", "none":
		case "kafka":
			if len(c.Notify.KafkaBrokers) == 0 {
				return fmt.Errorf("STOCKROOM_NOTIFY_KAFKA_BROKERS required for kafka notifications")
			}
		case "amqp":
			if c.Notify.AMQPURL == "" {
				return fmt.Errorf("STOCKROOM_NOTIFY_AMQP_URL required for amqp notifications")
			}
		default:
			return fmt.Errorf("unknown notification driver %q", d)
		}
	}
	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("STOCKROOM_NOTIFY_QUEUE_SIZE must be at least 1")
	}
	if c.Service.TxMaxAttempts < 1 {
		return fmt.Errorf("STOCKROOM_TX_MAX_ATTEMPTS must be at least 1")
	}
	if c.Service.OperationTimeout <= 0 {
		return fmt.Errorf("STOCKROOM_OPERATION_TIMEOUT must be positive")
	}
	if c.Service.LowStockThreshold < 0 {
		return fmt.Errorf("STOCKROOM_LOW_STOCK_THRESHOLD must not be negative")
	}
	switch c.Telemetry.Metrics {
	case "prometheus", "expvar", "none":
	default:
		return fmt.Errorf("unknown metrics backend %q", c.Telemetry.Metrics)
	}
	switch c.Telemetry.Tracing {
	case "otel", "json", "none":
	default:
		return fmt.Errorf("unknown tracing backend %q", c.Telemetry.Tracing)
	}
	return nil
}
