// Package store provides the rule sources the refresher pulls from: a static
// in-memory fixture and a PostgreSQL repository backed by pgx.
package store

import (
	"context"

	"github.com/rafaeljc/vigil/internal/ruleengine"
)

// Compile-time checks that both sources satisfy RuleSource.
var (
	_ RuleSource = (*StaticSource)(nil)
	_ RuleSource = (*PostgresStore)(nil)
)

// RuleSource supplies the current rule definitions.
type RuleSource interface {
	// FetchActiveRules returns the active rules in a stable order (ascending id).
	// Implementations must honour ctx cancellation.
	FetchActiveRules(ctx context.Context) ([]ruleengine.Rule, error)
}
