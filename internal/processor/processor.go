// Package processor consumes transaction.process: it evaluates each event
// against the current rules and raises an alert for every match.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafaeljc/vigil/internal/alert"
	"github.com/rafaeljc/vigil/internal/observability"
	"github.com/rafaeljc/vigil/internal/ruleengine"
	"github.com/rafaeljc/vigil/internal/transaction"
	"github.com/rafaeljc/vigil/internal/validation"
)

// RuleProvider returns the rules of the latest refresh, in source order.
type RuleProvider interface {
	Rules() []ruleengine.Rule
}

// Processor is the evaluator consumer.
type Processor struct {
	logger *slog.Logger
	rules  RuleProvider
	engine *ruleengine.Engine
	sink   alert.Sink
	now    func() time.Time
}

func New(logger *slog.Logger, rules RuleProvider, engine *ruleengine.Engine, sink alert.Sink) *Processor {
	validation.AssertNotNilInterface(rules, "rule provider")
	validation.AssertNotNil(engine, "rule engine")
	validation.AssertNotNilInterface(sink, "alert sink")
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		logger: logger.With(slog.String("component", "processor")),
		rules:  rules,
		engine: engine,
		sink:   sink,
		now:    time.Now,
	}
}

// Handle has the eventbus.Handler signature.
func (p *Processor) Handle(ctx context.Context, e *transaction.Event) error {
	_, err := p.Process(ctx, e)
	return err
}

// Process evaluates e and publishes alerts for its matches. With no rules
// loaded the event is skipped and nil results are returned.
//
// An alert that cannot be delivered does not stop the others; the failures
// are returned together.
func (p *Processor) Process(ctx context.Context, e *transaction.Event) ([]ruleengine.EvaluationResult, error) {
	rules := p.rules.Rules()
	if len(rules) == 0 {
		observability.EventsEvaluated.WithLabelValues("no_rules").Inc()
		p.logger.Warn("no rules loaded, skipping event", slog.String("cin", cinOf(e)))
		return nil, nil
	}

	start := time.Now()
	results, err := p.engine.Evaluate(e, rules)
	if err != nil {
		observability.EventsEvaluated.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("evaluate event: %w", err)
	}
	observability.EvaluationDuration.Observe(time.Since(start).Seconds())
	observability.EventsEvaluated.WithLabelValues("evaluated").Inc()

	byID := make(map[int64]ruleengine.Rule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}

	var matched, failed int
	var alertErrs []error
	detectedAt := p.now()

	for _, res := range results {
		switch {
		case res.HasError():
			failed++
			observability.RuleResultsTotal.WithLabelValues("error").Inc()
			p.logger.Warn("rule evaluation error",
				slog.Int64("rule_id", res.RuleID),
				slog.String("error", res.Error),
			)
		case res.Matched:
			matched++
			observability.RuleResultsTotal.WithLabelValues("matched").Inc()
			if err := p.raise(ctx, alert.New(byID[res.RuleID], e, detectedAt)); err != nil {
				alertErrs = append(alertErrs, err)
			}
		default:
			observability.RuleResultsTotal.WithLabelValues("unmatched").Inc()
		}
	}

	p.logger.Info("event evaluated",
		slog.String("cin", e.CIN),
		slog.Int("rules", len(results)),
		slog.Int("matched", matched),
		slog.Int("errors", failed),
	)

	return results, errors.Join(alertErrs...)
}

func (p *Processor) raise(ctx context.Context, a alert.Alert) error {
	if err := p.sink.Publish(ctx, a); err != nil {
		observability.AlertsPublished.WithLabelValues(p.sink.Name(), "fail").Inc()
		return fmt.Errorf("alert for rule %d: %w", a.RuleID, err)
	}
	observability.AlertsPublished.WithLabelValues(p.sink.Name(), "success").Inc()
	return nil
}

func cinOf(e *transaction.Event) string {
	if e == nil {
		return ""
	}
	return e.CIN
}
