// Package config provides centralized configuration management for vigil.
// Values are read from VIGIL_-prefixed environment variables with envconfig
// and checked with go-playground/validator plus per-section Validate methods.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvironmentProduction is the production environment identifier
	EnvironmentProduction = "production"

	// envPrefix is prepended to every environment variable name.
	envPrefix = "VIGIL"
)

// Config holds the complete application configuration.
type Config struct {
	App           AppConfig           `envconfig:"APP"`
	Server        ServerConfig        `envconfig:"SERVER"`
	Rules         RulesConfig         `envconfig:"RULES"`
	Events        EventsConfig        `envconfig:"EVENTS"`
	Alerts        AlertsConfig        `envconfig:"ALERTS"`
	Database      DatabaseConfig      `envconfig:"DB"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	NATS          NATSConfig          `envconfig:"NATS"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
}

// AppConfig contains core application settings.
type AppConfig struct {
	Name            string        `envconfig:"NAME" default:"vigil"`
	Version         string        `envconfig:"VERSION" default:"dev"`
	Environment     string        `envconfig:"ENV" default:"development" validate:"oneof=development staging production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=json text"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`
}

// ServerConfig groups the inbound API servers.
type ServerConfig struct {
	HTTP HTTPServerConfig `envconfig:"HTTP"`
	GRPC GRPCServerConfig `envconfig:"GRPC"`
}

// Load reads configuration from environment variables with the VIGIL prefix.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate runs struct-tag validation, then the section rules that depend on
// which collaborators are actually selected.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if err := c.Server.HTTP.Validate(c.App.Environment); err != nil {
		return err
	}

	if err := c.Server.GRPC.Validate(); err != nil {
		return err
	}

	if err := c.Rules.Validate(); err != nil {
		return err
	}

	if err := c.Events.Validate(); err != nil {
		return err
	}

	if err := c.Observability.Validate(); err != nil {
		return err
	}

	// Connection settings are only required for the backends in use.
	if c.Rules.Source == RuleSourcePostgres {
		if err := c.Database.Validate(c.App.Environment); err != nil {
			return err
		}
	}

	if c.Alerts.Sink == AlertSinkRedis {
		if err := c.Redis.Validate(c.App.Environment); err != nil {
			return err
		}
	}

	if c.Events.Transport == TransportNATS {
		if err := c.NATS.Validate(c.App.Environment); err != nil {
			return err
		}
	}

	return nil
}

// LogConfig logs the current configuration (without sensitive data).
func (c *Config) LogConfig(log *slog.Logger) {
	log.Info("configuration loaded",
		slog.String("app_name", c.App.Name),
		slog.String("version", c.App.Version),
		slog.String("environment", c.App.Environment),
		slog.String("log_level", c.App.LogLevel),
		slog.String("log_format", c.App.LogFormat),
		slog.Duration("shutdown_timeout", c.App.ShutdownTimeout),
		slog.String("http_port", c.Server.HTTP.Port),
		slog.Bool("http_tls_enabled", c.Server.HTTP.TLSEnabled),
		slog.Bool("grpc_enabled", c.Server.GRPC.Enabled),
		slog.String("grpc_port", c.Server.GRPC.Port),
		slog.String("rules_source", c.Rules.Source),
		slog.Duration("rules_refresh_interval", c.Rules.RefreshInterval),
		slog.Duration("rules_fetch_timeout", c.Rules.FetchTimeout),
		slog.String("events_transport", c.Events.Transport),
		slog.Int("events_max_batch_size", c.Events.MaxBatchSize),
		slog.Int("events_workers", c.Events.Workers),
		slog.String("events_framing", c.Events.Framing),
		slog.String("alerts_sink", c.Alerts.Sink),
		slog.String("observability_port", c.Observability.Port),
		slog.Bool("db_configured", c.Database.IsConfigured()),
		slog.Bool("redis_configured", c.Redis.IsConfigured()),
		slog.Bool("nats_configured", c.NATS.IsConfigured()),
	)
}

// validatePort checks if port is valid (1-65535)
func validatePort(port, context string) error {
	if port == "" {
		return fmt.Errorf("%s port cannot be empty", context)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%s port must be a number: %w", context, err)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got %d", context, portNum)
	}
	return nil
}

// validateHost checks if host is not empty and contains no whitespace
func validateHost(host, context string) error {
	if host == "" {
		return fmt.Errorf("%s host cannot be empty", context)
	}
	if strings.TrimSpace(host) != host {
		return fmt.Errorf("%s host cannot contain whitespace", context)
	}
	return nil
}

// validateNoWhitespace checks if a value is not empty and contains no whitespace
func validateNoWhitespace(value, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if strings.TrimSpace(value) != value {
		return fmt.Errorf("%s cannot contain whitespace", fieldName)
	}
	return nil
}

// validatePasswordStrength checks password meets minimum requirements
func validatePasswordStrength(password, context, environment string) error {
	if environment == EnvironmentProduction && len(password) < 12 {
		return fmt.Errorf("%s password must be at least 12 characters in production", context)
	}
	return nil
}

// isSecureSSLMode checks if SSL mode is production-safe
func isSecureSSLMode(mode string) bool {
	return mode == "require" || mode == "verify-ca" || mode == "verify-full"
}

// parseAndValidateURL parses rawURL and checks its scheme and host.
func parseAndValidateURL(rawURL string, allowedSchemes []string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	if !slices.Contains(allowedSchemes, parsed.Scheme) {
		return nil, fmt.Errorf("invalid scheme '%s', must be one of: %v", parsed.Scheme, allowedSchemes)
	}

	if parsed.Host == "" {
		return nil, fmt.Errorf("host is required in URL")
	}

	return parsed, nil
}
