package ruleengine

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/rafaeljc/vigil/internal/transaction"
)

// DefaultCostLimit bounds the runtime cost of a single evaluation.
const DefaultCostLimit uint64 = 1_000_000

// CompileError reports an expression the engine rejected while parsing or type-checking.
type CompileError struct {
	Expression string
	Issues     string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %q: %s", e.Expression, e.Issues)
}

// SetupError reports a type-checked expression the engine could not turn into a program.
type SetupError struct {
	Expression string
	Err        error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("build program for %q: %v", e.Expression, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// EvalError reports a runtime failure of a compiled program.
type EvalError struct {
	Expression string
	Err        error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate %q: %v", e.Expression, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// errNotBool is wrapped by EvalError when a program yields a non-boolean value.
var errNotBool = errors.New("expression did not produce a boolean")

// CELCompiler compiles rule expressions with cel-go against the transaction variables.
// It holds no cached programs; each Compile call builds a fresh one.
type CELCompiler struct {
	env       *cel.Env
	costLimit uint64
}

// NewCELCompiler declares the transaction variables and returns a compiler.
// A zero costLimit selects DefaultCostLimit.
func NewCELCompiler(costLimit uint64) (*CELCompiler, error) {
	if costLimit == 0 {
		costLimit = DefaultCostLimit
	}

	env, err := cel.NewEnv(
		cel.Variable(transaction.VarDebitAccount, cel.StringType),
		cel.Variable(transaction.VarCreditAccount, cel.StringType),
		cel.Variable(transaction.VarCIN, cel.StringType),
		cel.Variable(transaction.VarAmount, cel.DoubleType),
		cel.Variable(transaction.VarTransactedTimeEpochSeconds, cel.IntType),
		// lets "amount > 10000" compile alongside "amount > 10000.0"
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}

	return &CELCompiler{env: env, costLimit: costLimit}, nil
}

// Compile parses and type-checks expression, then plans it into a Program.
// Expressions whose checked type is not bool are rejected with a CompileError.
func (c *CELCompiler) Compile(expression string) (Program, error) {
	ast, iss := c.env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, &CompileError{Expression: expression, Issues: iss.Err().Error()}
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, &CompileError{
			Expression: expression,
			Issues:     fmt.Sprintf("expression must evaluate to bool, got %s", out),
		}
	}

	prg, err := c.env.Program(ast, cel.CostLimit(c.costLimit), cel.EvalOptions(cel.OptOptimize))
	if err != nil {
		return nil, &SetupError{Expression: expression, Err: err}
	}

	return &celProgram{expression: expression, prg: prg}, nil
}

type celProgram struct {
	expression string
	prg        cel.Program
}

func (p *celProgram) Evaluate(vars map[string]any) (bool, error) {
	out, _, err := p.prg.Eval(vars)
	if err != nil {
		return false, &EvalError{Expression: p.expression, Err: err}
	}

	b, ok := out.(types.Bool)
	if !ok {
		return false, &EvalError{
			Expression: p.expression,
			Err:        fmt.Errorf("%w: got %s", errNotBool, out.Type().TypeName()),
		}
	}
	return bool(b), nil
}
