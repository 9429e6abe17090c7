// Package cache provides the process-local compile memo for rule programs and
// the Redis client factory shared by Redis-backed components.
package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/vigil/internal/observability"
	"github.com/rafaeljc/vigil/internal/ruleengine"
	"github.com/rafaeljc/vigil/internal/validation"
)

// ProgramMemo remembers compiled programs by expression text, so a refresh
// only compiles expressions it has not seen recently. It is bounded in size
// (S3-FIFO eviction via otter) and entries expire after a TTL.
//
// Only successful compilations are stored.
type ProgramMemo struct {
	store otter.Cache[string, ruleengine.Program]
}

// NewProgramMemo builds a memo holding at most capacity programs for ttl each.
func NewProgramMemo(capacity int, ttl time.Duration) (*ProgramMemo, error) {
	validation.AssertPositive(capacity, "memo capacity")

	store, err := otter.MustBuilder[string, ruleengine.Program](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}

	return &ProgramMemo{store: store}, nil
}

// Get returns the program previously stored for expression.
func (m *ProgramMemo) Get(expression string) (ruleengine.Program, bool) {
	p, ok := m.store.Get(expression)
	if ok {
		observability.RulesMemoHits.Inc()
	} else {
		observability.RulesMemoMisses.Inc()
	}
	return p, ok
}

// Set stores a compiled program for expression.
func (m *ProgramMemo) Set(expression string, p ruleengine.Program) {
	m.store.Set(expression, p)
}

// Len returns the number of memoised programs.
func (m *ProgramMemo) Len() int {
	return m.store.Size()
}

// Clear drops every memoised program.
func (m *ProgramMemo) Clear() {
	m.store.Clear()
}

// Close stops the memo's background cleanup goroutines.
func (m *ProgramMemo) Close() {
	m.store.Close()
}

// RunMetricsCollector publishes the memo size every interval until ctx is done.
func (m *ProgramMemo) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.RulesMemoItems.Set(float64(m.store.Size()))
		}
	}
}
