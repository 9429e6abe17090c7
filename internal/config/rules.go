package config

import (
	"fmt"
	"time"
)

// Rule sources.
const (
	RuleSourceStatic   = "static"
	RuleSourcePostgres = "postgres"
)

// RulesConfig controls where rules come from and how the compiled cache is refreshed.
type RulesConfig struct {
	Source          string        `envconfig:"SOURCE" default:"static" validate:"oneof=static postgres"`
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"60s" validate:"gt=0"`
	FetchTimeout    time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s" validate:"gt=0"`

	// CostLimit bounds the work a single rule evaluation may perform.
	CostLimit uint64 `envconfig:"COST_LIMIT" default:"1000000" validate:"min=1"`

	// Compiled programs are memoised by expression text across refreshes.
	MemoSize int           `envconfig:"MEMO_SIZE" default:"10000" validate:"min=1"`
	MemoTTL  time.Duration `envconfig:"MEMO_TTL" default:"1h" validate:"gt=0"`
}

// Validate checks cross-field constraints.
func (c *RulesConfig) Validate() error {
	if c.FetchTimeout > c.RefreshInterval {
		return fmt.Errorf("rules fetch timeout (%s) cannot exceed refresh interval (%s)", c.FetchTimeout, c.RefreshInterval)
	}
	return nil
}
