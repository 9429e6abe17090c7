package observability

import "context"

// Checker is a dependency reported by the readiness probe.
// Check must honour ctx; the probe server bounds every round of checks.
type Checker interface {
	// Name identifies the dependency in the readiness body (e.g. "rule-cache", "postgres").
	Name() string
	Check(ctx context.Context) error
}
