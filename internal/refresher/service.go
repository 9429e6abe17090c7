// Package refresher keeps the rule program cache in step with the rule source.
// It refreshes once at startup, then on a timer and on demand, and allows at
// most one refresh body (fetch, compile, publish) to run at a time.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rafaeljc/vigil/internal/observability"
	"github.com/rafaeljc/vigil/internal/ruleengine"
	"github.com/rafaeljc/vigil/internal/store"
	"github.com/rafaeljc/vigil/internal/validation"
)

const (
	defaultInterval     = 60 * time.Second
	defaultFetchTimeout = 10 * time.Second
)

// Config holds the refresh schedule.
type Config struct {
	// Interval is the time between timer-driven refreshes.
	Interval time.Duration
	// FetchTimeout bounds a single call to the rule source.
	FetchTimeout time.Duration
}

// Memo remembers compiled programs by expression text across refreshes.
type Memo interface {
	Get(expression string) (ruleengine.Program, bool)
	Set(expression string, p ruleengine.Program)
}

// Service is the refresh coordinator.
type Service struct {
	logger   *slog.Logger
	config   Config
	source   store.RuleSource
	compiler ruleengine.Compiler
	programs *ruleengine.ProgramCache
	memo     Memo

	// mu serializes refresh bodies. The timer path only TryLocks it.
	mu sync.Mutex

	rules atomic.Pointer[[]ruleengine.Rule]
	state atomic.Pointer[State]

	trigger   chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a refresh coordinator publishing into programs.
// memo may be nil, in which case every refresh compiles every expression.
func New(
	logger *slog.Logger,
	cfg Config,
	source store.RuleSource,
	compiler ruleengine.Compiler,
	programs *ruleengine.ProgramCache,
	memo Memo,
) *Service {
	validation.AssertNotNilInterface(source, "rule source")
	validation.AssertNotNilInterface(compiler, "compiler")
	validation.AssertNotNil(programs, "program cache")
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}

	s := &Service{
		logger:   logger,
		config:   cfg,
		source:   source,
		compiler: compiler,
		programs: programs,
		memo:     memo,
		trigger:  make(chan struct{}, 1),
		ready:    make(chan struct{}),
	}
	empty := []ruleengine.Rule{}
	s.rules.Store(&empty)
	s.state.Store(&State{})
	return s
}

// Run refreshes once, marks the service ready, then refreshes on every tick
// and on every coalesced on-demand request until ctx is cancelled.
// A failed refresh is logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting rule refresher",
		slog.Duration("interval", s.config.Interval),
		slog.Duration("fetch_timeout", s.config.FetchTimeout),
	)

	s.mu.Lock()
	_ = s.refreshLocked(ctx, TriggerStartup)
	s.mu.Unlock()
	s.markReady()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("rule refresher stopping")
			return nil
		case <-ticker.C:
			s.refreshOnTick(ctx)
		case <-s.trigger:
			_ = s.Refresh(ctx)
		}
	}
}

// Ready is closed once the startup refresh has completed, whatever its outcome.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// RequestRefresh asks Run to refresh as soon as possible and returns at once.
// Requests made while one is already pending are merged into it; the return
// value reports whether this call queued a new request.
func (s *Service) RequestRefresh() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Refresh runs a refresh now, waiting for any refresh in progress to finish first.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx, TriggerOnDemand)
}

func (s *Service) refreshOnTick(ctx context.Context) {
	if !s.mu.TryLock() {
		observability.RulesRefreshSkipped.Inc()
		s.logger.Debug("refresh already running, skipping tick")
		return
	}
	defer s.mu.Unlock()

	_ = s.refreshLocked(ctx, TriggerTimer)
}

// refreshLocked is the refresh body. The caller holds mu.
func (s *Service) refreshLocked(ctx context.Context, trigger Trigger) error {
	start := time.Now()
	defer func() {
		observability.RulesRefreshDuration.Observe(time.Since(start).Seconds())
	}()

	rules, err := s.fetch(ctx)
	if err != nil {
		s.state.Store(s.state.Load().failed(time.Now(), err))
		observability.RulesRefreshTotal.WithLabelValues(string(trigger), "failure").Inc()
		s.logger.Error("rule refresh failed, keeping previous rules",
			slog.String("trigger", string(trigger)),
			slog.String("error", err.Error()),
		)
		return err
	}

	rules = s.dedupe(rules)
	compiled := s.publish(rules)

	now := time.Now()
	s.state.Store(succeeded(now, len(rules), compiled))
	observability.RulesRefreshTotal.WithLabelValues(string(trigger), "success").Inc()
	observability.RulesLastRefreshTimestamp.Set(float64(now.Unix()))

	s.logger.Info("rule refresh completed",
		slog.String("trigger", string(trigger)),
		slog.Int("fetched", len(rules)),
		slog.Int("compiled", compiled),
		slog.Int("failed", len(rules)-compiled),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *Service) fetch(ctx context.Context) ([]ruleengine.Rule, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()

	rules, err := s.source.FetchActiveRules(fetchCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("fetch rules timed out after %s: %w", s.config.FetchTimeout, err)
		}
		return nil, fmt.Errorf("fetch rules: %w", err)
	}
	return rules, nil
}

// dedupe keeps the first rule seen for each id.
func (s *Service) dedupe(rules []ruleengine.Rule) []ruleengine.Rule {
	seen := make(map[int64]struct{}, len(rules))
	out := make([]ruleengine.Rule, 0, len(rules))
	for _, r := range rules {
		if _, dup := seen[r.ID]; dup {
			s.logger.Warn("duplicate rule id from source, ignoring later definition",
				slog.Int64("rule_id", r.ID),
				slog.String("expression", r.Expression),
			)
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// CompileAndCache compiles rules and publishes them as the current generation,
// replacing whatever was there. It returns the number of programs published.
// Rules that fail to compile are logged and left out of the generation but
// stay in the rule list, so evaluating them reports them as not compiled.
func (s *Service) CompileAndCache(rules []ruleengine.Rule) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publish(s.dedupe(rules))
}

// publish compiles rules, then installs programs first and the rule list second,
// so a reader holding the new rule list always finds the new generation.
func (s *Service) publish(rules []ruleengine.Rule) int {
	programs := make(map[int64]ruleengine.Program, len(rules))
	failures := 0

	for _, r := range rules {
		prog, err := s.compile(r.Expression)
		if err != nil {
			failures++
			s.logger.Error("rule failed to compile",
				slog.Int64("rule_id", r.ID),
				slog.String("expression", r.Expression),
				slog.String("error", err.Error()),
			)
			continue
		}
		programs[r.ID] = prog
	}

	gen := s.programs.Replace(programs)

	published := make([]ruleengine.Rule, len(rules))
	copy(published, rules)
	s.rules.Store(&published)

	observability.RulesCached.Set(float64(len(published)))
	observability.RulesCompiled.Set(float64(gen.Size()))
	observability.RulesCompileFailures.Add(float64(failures))

	return gen.Size()
}

func (s *Service) compile(expression string) (ruleengine.Program, error) {
	if s.memo != nil {
		if prog, ok := s.memo.Get(expression); ok {
			return prog, nil
		}
	}

	prog, err := s.compiler.Compile(expression)
	if err != nil {
		return nil, err
	}

	if s.memo != nil {
		s.memo.Set(expression, prog)
	}
	return prog, nil
}

// Rules returns the rule list of the latest refresh, in source order.
// The slice is shared and must not be modified.
func (s *Service) Rules() []ruleengine.Rule {
	return *s.rules.Load()
}

// CachedRules is the number of rules known from the latest refresh.
func (s *Service) CachedRules() int {
	return len(*s.rules.Load())
}

// CompiledRules is the number of programs in the current generation.
func (s *Service) CompiledRules() int {
	return s.programs.Size()
}

// State returns the outcome of the latest refresh attempt.
func (s *Service) State() State {
	return *s.state.Load()
}
