package config

import (
	"fmt"
	"strings"
	"time"
)

// NATSConfig contains NATS connection settings for the networked event transport.
type NATSConfig struct {
	URL        string `envconfig:"URL"`
	Name       string `envconfig:"CLIENT_NAME" default:"vigil"`
	QueueGroup string `envconfig:"QUEUE_GROUP" default:"vigil-evaluators"`
	Token      string `envconfig:"TOKEN"`

	MaxReconnects int           `envconfig:"MAX_RECONNECTS" default:"-1"`
	ReconnectWait time.Duration `envconfig:"RECONNECT_WAIT" default:"2s"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"5s"`
	PingInterval  time.Duration `envconfig:"PING_INTERVAL" default:"20s"`
	DrainTimeout  time.Duration `envconfig:"DRAIN_TIMEOUT" default:"10s"`
}

// Validate checks if the NATS configuration is valid.
func (c *NATSConfig) Validate(environment string) error {
	if c.URL == "" {
		return fmt.Errorf("nats URL is required when the nats transport is selected")
	}

	// nats.Connect accepts a comma separated server list
	for _, server := range strings.Split(c.URL, ",") {
		parsed, err := parseAndValidateURL(strings.TrimSpace(server), []string{"nats", "tls"})
		if err != nil {
			return fmt.Errorf("invalid nats URL: %w", err)
		}
		if environment == EnvironmentProduction && parsed.Scheme != "tls" {
			return fmt.Errorf("nats must use tls:// in production environment")
		}
	}

	if err := validateNoWhitespace(c.QueueGroup, "nats queue group"); err != nil {
		return err
	}

	return nil
}

// IsConfigured returns true if a NATS server URL is present.
func (c *NATSConfig) IsConfigured() bool {
	return c.URL != ""
}
