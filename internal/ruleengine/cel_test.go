package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompiler(t *testing.T) *CELCompiler {
	t.Helper()
	c, err := NewCELCompiler(0)
	require.NoError(t, err)
	return c
}

func vars(amount float64) map[string]any {
	return map[string]any{
		"debitAccount":               "ACC-001",
		"creditAccount":              "ACC-002",
		"cin":                        "CIN-123",
		"amount":                     amount,
		"transactedTimeEpochSeconds": int64(1705314600),
	}
}

func TestCELCompiler_Compile(t *testing.T) {
	t.Parallel()

	compiler := newTestCompiler(t)

	tests := []struct {
		name       string
		expression string
		wantErr    any
	}{
		{name: "Should compile a double comparison", expression: "amount > 10000.0"},
		{name: "Should compile an int literal against a double", expression: "amount > 10000"},
		{name: "Should compile string functions", expression: `debitAccount.startsWith("SUSP-") || creditAccount.contains("OFF")`},
		{name: "Should compile conversions", expression: "amount == double(int(amount)) && amount >= 1000.0"},
		{name: "Should compile the epoch variable", expression: "transactedTimeEpochSeconds > 0"},
		{name: "Should reject a syntax error", expression: "amount >", wantErr: &CompileError{}},
		{name: "Should reject an undeclared variable", expression: "merchant == 'x'", wantErr: &CompileError{}},
		{name: "Should reject a type mismatch", expression: `amount > "big"`, wantErr: &CompileError{}},
		{name: "Should reject a non-boolean expression", expression: "amount * 2.0", wantErr: &CompileError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			prog, err := compiler.Compile(tt.expression)

			if tt.wantErr != nil {
				var compileErr *CompileError
				require.ErrorAs(t, err, &compileErr)
				assert.Equal(t, tt.expression, compileErr.Expression)
				assert.NotEmpty(t, compileErr.Issues)
				assert.Nil(t, prog)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, prog)
		})
	}
}

func TestCELProgram_Evaluate(t *testing.T) {
	t.Parallel()

	compiler := newTestCompiler(t)

	t.Run("Should match above the threshold only", func(t *testing.T) {
		t.Parallel()

		prog, err := compiler.Compile("amount > 10000.0")
		require.NoError(t, err)

		matched, err := prog.Evaluate(vars(15000.00))
		require.NoError(t, err)
		assert.True(t, matched)

		matched, err = prog.Evaluate(vars(10000.00))
		require.NoError(t, err)
		assert.False(t, matched)
	})

	t.Run("Should fail at runtime on a missing variable", func(t *testing.T) {
		t.Parallel()

		prog, err := compiler.Compile("amount > 1.0")
		require.NoError(t, err)

		_, err = prog.Evaluate(map[string]any{"cin": "x"})

		var evalErr *EvalError
		require.ErrorAs(t, err, &evalErr)
		assert.Equal(t, "amount > 1.0", evalErr.Expression)
	})

	t.Run("Should fail at runtime on an int overflow", func(t *testing.T) {
		t.Parallel()

		prog, err := compiler.Compile("amount == double(int(amount))")
		require.NoError(t, err)

		_, err = prog.Evaluate(vars(1e30))

		var evalErr *EvalError
		assert.ErrorAs(t, err, &evalErr)
	})

	t.Run("Should fail when a dyn expression yields a non-boolean", func(t *testing.T) {
		t.Parallel()

		prog, err := compiler.Compile("dyn(amount)")
		require.NoError(t, err)

		_, err = prog.Evaluate(vars(1))

		assert.ErrorIs(t, err, errNotBool)
	})

	t.Run("Should be safe for concurrent use", func(t *testing.T) {
		t.Parallel()

		prog, err := compiler.Compile("amount >= 500.0")
		require.NoError(t, err)

		done := make(chan bool)
		for i := range 16 {
			go func() {
				m, _ := prog.Evaluate(vars(float64(i * 100)))
				done <- m == (i >= 5)
			}()
		}
		for range 16 {
			assert.True(t, <-done)
		}
	})
}
