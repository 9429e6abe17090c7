package config

import (
	"fmt"
	"strings"
	"time"
)

// ObservabilityConfig holds configuration for the observability server (metrics, probes).
type ObservabilityConfig struct {
	// Port defines where the observability server listens.
	Port string `envconfig:"PORT" default:"9090"`

	// Timeout bounds read, write and idle operations, and each readiness check.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`

	// CollectInterval is how often pool and memo gauges are sampled.
	CollectInterval time.Duration `envconfig:"COLLECT_INTERVAL" default:"15s" validate:"gt=0"`
}

// Validate checks ObservabilityConfig fields for correctness.
func (o *ObservabilityConfig) Validate() error {
	if err := validatePort(o.Port, "observability"); err != nil {
		return err
	}

	for _, p := range []string{o.LivenessPath, o.ReadinessPath, o.MetricsPath} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("observability path %q must start with '/'", p)
		}
	}

	return nil
}
