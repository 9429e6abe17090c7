package ruleengine

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/vigil/internal/transaction"
)

func sampleEvent() *transaction.Event {
	return &transaction.Event{
		DebitAccount:   "ACC-001",
		CreditAccount:  "ACC-002",
		CIN:            "CIN-123",
		Amount:         decimal.RequireFromString("15000.00"),
		TransactedTime: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

// compiledEngine compiles rules with the real CEL compiler into a fresh cache.
func compiledEngine(t *testing.T, rules ...Rule) *Engine {
	t.Helper()

	compiler := newTestCompiler(t)
	programs := make(map[int64]Program, len(rules))
	for _, r := range rules {
		prog, err := compiler.Compile(r.Expression)
		if err != nil {
			continue
		}
		programs[r.ID] = prog
	}

	cache := NewProgramCache()
	cache.Replace(programs)
	return New(nil, cache)
}

func TestEngine_Evaluate(t *testing.T) {
	t.Parallel()

	threshold := Rule{ID: 1, Expression: "amount > 10000.0", Active: true}

	t.Run("Should match an amount above the threshold", func(t *testing.T) {
		t.Parallel()

		results, err := compiledEngine(t, threshold).Evaluate(sampleEvent(), []Rule{threshold})

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, EvaluationResult{RuleID: 1, Expression: "amount > 10000.0", Matched: true}, results[0])
		assert.False(t, results[0].HasError())
	})

	t.Run("Should not match an amount equal to the threshold", func(t *testing.T) {
		t.Parallel()

		event := sampleEvent()
		event.Amount = decimal.RequireFromString("10000.00")

		results, err := compiledEngine(t, threshold).Evaluate(event, []Rule{threshold})

		require.NoError(t, err)
		assert.False(t, results[0].Matched)
		assert.Empty(t, results[0].Error)
	})

	t.Run("Should report rules absent from the cache as not compiled", func(t *testing.T) {
		t.Parallel()

		unknown := Rule{ID: 42, Expression: "cin == 'x'", Active: true}

		results, err := compiledEngine(t, threshold).Evaluate(sampleEvent(), []Rule{unknown})

		require.NoError(t, err)
		assert.Equal(t, EvaluationResult{RuleID: 42, Expression: "cin == 'x'", Error: "Rule not compiled"}, results[0])
	})

	t.Run("Should isolate runtime failures to the failing rule", func(t *testing.T) {
		t.Parallel()

		// Arrange
		cache := NewProgramCache()
		cache.Replace(map[int64]Program{
			1: constProgram{matched: true},
			2: constProgram{err: errors.New("no such overload")},
			3: funcProgram(func(map[string]any) (bool, error) { panic("boom") }),
			4: constProgram{matched: false},
		})
		rules := []Rule{{ID: 1, Expression: "a"}, {ID: 2, Expression: "b"}, {ID: 3, Expression: "c"}, {ID: 4, Expression: "d"}}

		// Act
		results, err := New(nil, cache).Evaluate(sampleEvent(), rules)

		// Assert
		require.NoError(t, err)
		require.Len(t, results, 4)
		assert.True(t, results[0].Matched)
		assert.Equal(t, "no such overload", results[1].Error)
		assert.False(t, results[1].Matched)
		assert.Contains(t, results[2].Error, "boom")
		assert.False(t, results[2].Matched)
		assert.False(t, results[3].Matched)
		assert.False(t, results[3].HasError())
	})

	t.Run("Should pass the event variables to programs", func(t *testing.T) {
		t.Parallel()

		var got map[string]any
		cache := NewProgramCache()
		cache.Replace(map[int64]Program{7: funcProgram(func(v map[string]any) (bool, error) {
			got = v
			return true, nil
		})})

		_, err := New(nil, cache).Evaluate(sampleEvent(), []Rule{{ID: 7, Expression: "x"}})

		require.NoError(t, err)
		assert.Equal(t, 15000.0, got["amount"])
		assert.Equal(t, "CIN-123", got["cin"])
		assert.Equal(t, int64(1705314600), got["transactedTimeEpochSeconds"])
	})

	t.Run("Should reject a nil event", func(t *testing.T) {
		t.Parallel()

		_, err := compiledEngine(t).Evaluate(nil, []Rule{threshold})

		assert.ErrorIs(t, err, ErrNilEvent)
	})

	t.Run("Should return an empty result for empty or nil rules", func(t *testing.T) {
		t.Parallel()

		engine := compiledEngine(t, threshold)

		results, err := engine.Evaluate(sampleEvent(), nil)
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)

		results, err = engine.Evaluate(sampleEvent(), []Rule{})
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestEngine_EvaluatePreservesOrderAndLength(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	cache := NewProgramCache()
	programs := map[int64]Program{}
	for id := int64(1); id <= 50; id++ {
		if rng.Intn(3) > 0 {
			programs[id] = constProgram{matched: rng.Intn(2) == 0}
		}
	}
	cache.Replace(programs)
	engine := New(nil, cache)

	for range 100 {
		n := rng.Intn(40)
		rules := make([]Rule, n)
		for i := range rules {
			rules[i] = Rule{ID: 1 + rng.Int63n(60), Expression: "r"}
		}

		results, err := engine.Evaluate(sampleEvent(), rules)

		require.NoError(t, err)
		require.Len(t, results, n)
		for i := range rules {
			assert.Equal(t, rules[i].ID, results[i].RuleID)
			if results[i].HasError() {
				assert.False(t, results[i].Matched, "an errored result must not be matched")
			}
		}
	}
}

func TestRule_Validate(t *testing.T) {
	t.Parallel()

	_, err := NewRule(1, "amount > 1.0", "", true)
	assert.NoError(t, err)

	_, err = NewRule(0, "amount > 1.0", "", true)
	assert.ErrorContains(t, err, "id must be greater than 0")

	_, err = NewRule(3, "   ", "", true)
	assert.ErrorContains(t, err, "expression cannot be null or blank")
}
