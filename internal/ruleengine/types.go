// Package ruleengine compiles transaction rules into executable programs,
// keeps the active programs in an atomically replaced cache, and evaluates
// events against the cached rule set with per-rule failure isolation.
package ruleengine

import (
	"fmt"
	"strings"

	"github.com/rafaeljc/vigil/internal/validation"
)

// ErrNotCompiled is the result error for a rule absent from the active generation.
const ErrNotCompiled = "Rule not compiled"

// Rule is a named boolean expression over a transaction. Rules are immutable;
// a refresh supersedes a rule by producing a new value with the same ID.
type Rule struct {
	ID          int64  `json:"id" validate:"gt=0"`
	Expression  string `json:"expression" validate:"notblank"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// NewRule builds a validated rule.
func NewRule(id int64, expression, description string, active bool) (Rule, error) {
	r := Rule{ID: id, Expression: expression, Description: description, Active: active}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks the rule invariants: a positive id and a non-blank expression.
func (r Rule) Validate() error {
	if err := validation.Struct(r); err != nil {
		return fmt.Errorf("invalid rule %d: %w", r.ID, err)
	}
	return nil
}

// Program is a compiled rule expression. Implementations must be safe for
// concurrent use; they are shared by every in-flight evaluation.
type Program interface {
	Evaluate(vars map[string]any) (bool, error)
}

// Compiler turns expression text into a Program.
type Compiler interface {
	Compile(expression string) (Program, error)
}

// EvaluationResult is the outcome of one rule against one event.
// Error is set iff evaluation or lookup failed, in which case Matched is false.
type EvaluationResult struct {
	RuleID     int64  `json:"ruleId"`
	Expression string `json:"expression"`
	Matched    bool   `json:"matched"`
	Error      string `json:"error,omitempty"`
}

// HasError reports whether the rule failed to produce a boolean.
func (r EvaluationResult) HasError() bool {
	return strings.TrimSpace(r.Error) != ""
}

func matchResult(rule Rule, matched bool) EvaluationResult {
	return EvaluationResult{RuleID: rule.ID, Expression: rule.Expression, Matched: matched}
}

func errorResult(rule Rule, reason string) EvaluationResult {
	return EvaluationResult{RuleID: rule.ID, Expression: rule.Expression, Error: reason}
}
