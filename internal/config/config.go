package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/nfrund/pubsubd/internal/events"
	"github.com/nfrund/pubsubd/internal/topics"
)

// Config holds all configuration for the broker.
type Config struct {
	ListenAddr        string        `validate:"required"`
	HTTPAddr          string        `validate:"omitempty"`
	ResubscribePolicy string        `validate:"oneof=replace keep"`
	WriteTimeout      time.Duration `validate:"gte=0"`
	MaxLineBytes      int           `validate:"gte=64"`
	ShutdownTimeout   time.Duration `validate:"gt=0"`
	LogFormat         string        `validate:"oneof=text json console"`
	LogLevel          string        `validate:"oneof=debug info warn error"`

	TracingEnabled     bool
	TracingServiceName string `validate:"required_if=TracingEnabled true"`
	TracingZipkinURL   string `validate:"omitempty,url"`
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	tracing := events.DefaultTracingConfig()
	return &Config{
		ListenAddr:         ":7000",
		HTTPAddr:           ":7001",
		ResubscribePolicy:  string(topics.ResubscribeReplace),
		WriteTimeout:       0,
		MaxLineBytes:       1 << 20,
		ShutdownTimeout:    10 * time.Second,
		LogFormat:          "text",
		LogLevel:           "info",
		TracingEnabled:     tracing.Enabled,
		TracingServiceName: tracing.ServiceName,
		TracingZipkinURL:   tracing.ZipkinURL,
	}
}

// New loads configuration from a .env file, if present, and the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, falling back to defaults for unset
// variables, and validates the result.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	var errs []error

	setString(getenv, "PUBSUB_LISTEN_ADDR", &cfg.ListenAddr)
	setString(getenv, "PUBSUB_HTTP_ADDR", &cfg.HTTPAddr)
	setString(getenv, "PUBSUB_RESUBSCRIBE_POLICY", &cfg.ResubscribePolicy)
	setString(getenv, "LOG_FORMAT", &cfg.LogFormat)
	setString(getenv, "LOG_LEVEL", &cfg.LogLevel)
	setString(getenv, "PUBSUB_TRACING_SERVICE_NAME", &cfg.TracingServiceName)
	setString(getenv, "PUBSUB_TRACING_ZIPKIN_URL", &cfg.TracingZipkinURL)

	if v := getenv("PUBSUB_WRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PUBSUB_WRITE_TIMEOUT: %w", err))
		}
		cfg.WriteTimeout = d
	}
	if v := getenv("PUBSUB_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PUBSUB_SHUTDOWN_TIMEOUT: %w", err))
		}
		cfg.ShutdownTimeout = d
	}
	if v := getenv("PUBSUB_MAX_LINE_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PUBSUB_MAX_LINE_BYTES: %w", err))
		}
		cfg.MaxLineBytes = n
	}
	if v := getenv("PUBSUB_TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PUBSUB_TRACING_ENABLED: %w", err))
		}
		cfg.TracingEnabled = enabled
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Tracing returns the event bus tracing settings.
func (c *Config) Tracing() events.TracingConfig {
	return events.TracingConfig{
		Enabled:     c.TracingEnabled,
		ServiceName: c.TracingServiceName,
		ZipkinURL:   c.TracingZipkinURL,
	}
}

// Policy returns the configured resubscribe policy.
func (c *Config) Policy() topics.ResubscribePolicy {
	return topics.ResubscribePolicy(c.ResubscribePolicy)
}
