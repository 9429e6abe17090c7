package ruleengine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/vigil/internal/transaction"
	"github.com/rafaeljc/vigil/internal/validation"
)

// ErrNilEvent is returned by Evaluate when no event is supplied.
var ErrNilEvent = errors.New("transaction event cannot be null")

// Engine evaluates events against the programs in a ProgramCache.
// It performs no I/O and never mutates the cache.
type Engine struct {
	cache  *ProgramCache
	logger *slog.Logger
}

// New creates an Engine reading from cache.
// If logger is nil, it defaults to slog.Default().
func New(logger *slog.Logger, cache *ProgramCache) *Engine {
	validation.AssertNotNil(cache, "program cache")
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{cache: cache, logger: logger}
}

// Evaluate runs every rule against event and returns one result per rule, in
// the order of rules. The whole call reads a single cache generation.
//
// A rule missing from the generation yields ErrNotCompiled. A runtime failure
// is captured in that rule's result and never stops the remaining rules.
func (e *Engine) Evaluate(event *transaction.Event, rules []Rule) ([]EvaluationResult, error) {
	if event == nil {
		return nil, ErrNilEvent
	}

	results := make([]EvaluationResult, 0, len(rules))
	if len(rules) == 0 {
		return results, nil
	}

	gen := e.cache.Snapshot()
	vars := event.Variables()

	for _, rule := range rules {
		prog, ok := gen.Lookup(rule.ID)
		if !ok {
			results = append(results, errorResult(rule, ErrNotCompiled))
			continue
		}

		matched, err := evaluateIsolated(prog, vars)
		if err != nil {
			e.logger.Debug("rule evaluation failed",
				slog.Int64("rule_id", rule.ID),
				slog.String("error", err.Error()),
			)
			results = append(results, errorResult(rule, err.Error()))
			continue
		}

		results = append(results, matchResult(rule, matched))
	}

	return results, nil
}

// evaluateIsolated converts a panicking program into an error so that one
// rule cannot take down the evaluation of the others.
func evaluateIsolated(prog Program, vars map[string]any) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return prog.Evaluate(vars)
}
