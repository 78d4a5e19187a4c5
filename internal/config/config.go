// Package config centralises configuration parsing for the fitness center services.
//
// Values come from FITNESS_-prefixed environment variables, optionally seeded
// from a .env file in the working directory.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from variable names before they are mapped onto Config keys.
const EnvPrefix = "FITNESS_"

// Config captures runtime configuration values for the api, consumer and dlqmanager binaries.
type Config struct {
	HTTPAddress     string        `koanf:"http_address" validate:"required"`
	MetricsAddress  string        `koanf:"metrics_address" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigin      string        `koanf:"cors_origin"`

	// PostgresURL selects the Postgres store. Empty runs the api on the in-memory store.
	PostgresURL string `koanf:"postgres_url"`
	TraceSQL    bool   `koanf:"trace_sql"`

	KafkaBrokers       []string      `koanf:"kafka_brokers" validate:"dive,hostname_port"`
	SchemaRegistryURL  string        `koanf:"schema_registry_url" validate:"omitempty,url"`
	OutboxPollInterval time.Duration `koanf:"outbox_poll_interval" validate:"gt=0"`
	OutboxBatchSize    int           `koanf:"outbox_batch_size" validate:"min=1,max=1000"`

	DLQPollInterval time.Duration `koanf:"dlq_poll_interval" validate:"gt=0"`
	DLQBatchSize    int           `koanf:"dlq_batch_size" validate:"min=1,max=1000"`
	DLQMaxRetries   int           `koanf:"dlq_max_retries" validate:"min=1"`
	DLQBaseDelay    time.Duration `koanf:"dlq_base_delay" validate:"gt=0"`

	ConsumerGroupID string   `koanf:"consumer_group_id" validate:"required"`
	ConsumerTopics  []string `koanf:"consumer_topics" validate:"min=1,dive,required"`

	LogLevel  string `koanf:"log_level" validate:"oneof=trace debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=json console"`
}

// Defaults returns the configuration used for local development.
func Defaults() Config {
	return Config{
		HTTPAddress:        ":8080",
		MetricsAddress:     ":9102",
		ShutdownTimeout:    10 * time.Second,
		CORSOrigin:         "http://localhost:5173",
		SchemaRegistryURL:  "http://schema-registry:8081",
		OutboxPollInterval: 2 * time.Second,
		OutboxBatchSize:    25,
		DLQPollInterval:    30 * time.Second,
		DLQBatchSize:       50,
		DLQMaxRetries:      5,
		DLQBaseDelay:       time.Minute,
		ConsumerGroupID:    "fitness-center-audit",
		ConsumerTopics:     []string{"member_events", "workout_events"},
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Load reads FITNESS_* environment variables over the defaults and validates the result.
func Load() (Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Defaults()
	// The decoder writes slices element by element, so slice defaults are
	// applied after decoding rather than merged with the env value.
	defaultTopics := cfg.ConsumerTopics
	cfg.ConsumerTopics = nil
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = splitAndTrim(cfg.KafkaBrokers)
	cfg.ConsumerTopics = splitAndTrim(cfg.ConsumerTopics)
	if len(cfg.ConsumerTopics) == 0 {
		cfg.ConsumerTopics = defaultTopics
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// UsePostgres reports whether a database connection string was configured.
func (c Config) UsePostgres() bool {
	return strings.TrimSpace(c.PostgresURL) != ""
}

// KafkaEnabled reports whether outbox events should be shipped to Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func splitAndTrim(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
