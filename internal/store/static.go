package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/rafaeljc/vigil/internal/ruleengine"
)

// SampleRules is the built-in rule set served by the static source.
// The postgres seed migration inserts the same rules.
func SampleRules() []ruleengine.Rule {
	return []ruleengine.Rule{
		{ID: 1, Expression: "amount > 10000.0", Description: "Flag transactions over $10,000", Active: true},
		{ID: 2, Expression: "amount > 50000.0", Description: "Critical alert for transactions over $50,000", Active: true},
		{ID: 3, Expression: "debitAccount == creditAccount", Description: "Self-transfer detection", Active: true},
		{ID: 4, Expression: `debitAccount.startsWith("SUSP-") || creditAccount.startsWith("SUSP-")`, Description: "Suspicious account prefix detection", Active: true},
		{ID: 5, Expression: "amount == double(int(amount)) && amount >= 1000.0", Description: "Round amount detection for potential structuring", Active: true},
		{ID: 6, Expression: `amount > 5000.0 && (debitAccount.contains("OFF") || creditAccount.contains("OFF"))`, Description: "Offshore account high-value transfer", Active: true},
		{ID: 7, Expression: `cin.startsWith("VIP-")`, Description: "VIP customer transaction", Active: true},
		{ID: 8, Expression: `amount > 25000.0 && debitAccount != creditAccount && !cin.startsWith("VIP-")`, Description: "Large non-VIP inter-account transfer", Active: true},
	}
}

// StaticSource serves a fixed rule set from memory.
type StaticSource struct {
	mu    sync.RWMutex
	rules []ruleengine.Rule
}

// NewStaticSource returns a source serving rules. With no arguments it serves SampleRules.
func NewStaticSource(rules ...ruleengine.Rule) *StaticSource {
	if len(rules) == 0 {
		rules = SampleRules()
	}
	return &StaticSource{rules: slices.Clone(rules)}
}

// FetchActiveRules returns the active rules sorted by id.
func (s *StaticSource) FetchActiveRules(ctx context.Context) ([]ruleengine.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]ruleengine.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.Active {
			active = append(active, r)
		}
	}
	slices.SortStableFunc(active, func(a, b ruleengine.Rule) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return active, nil
}

// Set swaps the served rules. Tests use it to simulate a changing source.
func (s *StaticSource) Set(rules ...ruleengine.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = slices.Clone(rules)
}
