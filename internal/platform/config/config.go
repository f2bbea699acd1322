package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	id "notary/pkg/domain"
	"notary/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"NOTARY_ADDR" envDefault:":8080"`
	AdminIdentity   string        `env:"NOTARY_ADMIN_IDENTITY"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	JWT         JWTConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Idempotency IdempotencyConfig
	Kafka       KafkaConfig
	Outbox      OutboxConfig
	Log         LogConfig
	Tracing     TracingConfig
}

type JWTConfig struct {
	SigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"notary"`
	Audience   string        `env:"JWT_AUDIENCE" envDefault:"notary-api"`
	TokenTTL   time.Duration `env:"JWT_TOKEN_TTL" envDefault:"1h"`
}

// DatabaseConfig selects the Postgres stores. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL          string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
}

// RedisConfig configures the shared idempotency store. An empty URL falls back to memory.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

type IdempotencyConfig struct {
	TTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// KafkaConfig enables the outbox relay. No brokers means the relay does not run.
type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"notary.audit"`
}

type OutboxConfig struct {
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// TracingConfig enables OTLP export. An empty endpoint disables tracing.
type TracingConfig struct {
	Endpoint    string  `env:"OTEL_EXPORTER_ENDPOINT"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"notary"`
	SampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = strings.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Server) Validate() error {
	var errs []error
	if _, err := id.ParseIdentity(c.AdminIdentity); err != nil {
		errs = append(errs, errors.New("NOTARY_ADMIN_IDENTITY is required"))
	}
	if c.JWT.SigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must not be empty"))
	}
	if c.Idempotency.TTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.Outbox.PollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Database.URL == "" {
		errs = append(errs, errors.New("KAFKA_BROKERS requires DATABASE_URL: the relay reads the Postgres outbox"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be between 0 and 1"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of json, text", c.Log.Format))
	}
	return errors.Join(errs...)
}

// UsesPostgres reports whether durable stores are configured.
func (c Server) UsesPostgres() bool {
	return c.Database.URL != ""
}

// RelayEnabled reports whether outbox rows should be shipped to Kafka.
func (c Server) RelayEnabled() bool {
	return c.UsesPostgres() && len(c.Kafka.Brokers) > 0
}

// JWTFromEnv reads only the token settings. Tools that mint tokens use it without
// needing the full server configuration.
func JWTFromEnv() (JWTConfig, error) {
	var cfg JWTConfig
	if err := env.Parse(&cfg); err != nil {
		return JWTConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SigningKey == "" {
		return JWTConfig{}, errors.New("JWT_SIGNING_KEY must not be empty")
	}
	return cfg, nil
}
