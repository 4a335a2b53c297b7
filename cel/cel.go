package cel

import (
	"context"
	"fmt"
	"maps"

	"github.com/fundscope/verdict"

	celgo "github.com/google/cel-go/cel"
)

// costLimit caps the runtime cost of a single condition evaluation.
// Conditions are short boolean expressions; anything approaching this
// limit indicates an abusive or broken rule.
const costLimit = 1_000_000

// Evaluator compiles and evaluates rule conditions with cel-go.
// The zero value is not usable; call NewEvaluator.
type Evaluator struct{}

// NewEvaluator creates a CEL-backed evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// program is the compiled form stored on a rule by the registry.
type program struct {
	plain celgo.Program

	// compiled with OptTrackState; nil unless the registry collects
	// diagnostics
	diagnosable celgo.Program
}

// Compile parses and type-checks the expression against the schema and
// returns an evaluable program. Contexts are plain maps: each schema
// element becomes a CEL variable of the corresponding CEL type.
//
// With dryRun, all checks run but no program is returned.
func (e *Evaluator) Compile(expr string, s verdict.Schema, collectDiagnostics, dryRun bool) (any, error) {
	env, err := newEnv(s)
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compiling expression: %w", issues.Err())
	}

	if dryRun {
		return nil, nil
	}

	p := program{}
	p.plain, err = env.Program(ast, celgo.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("generating program: %w", err)
	}
	if collectDiagnostics {
		p.diagnosable, err = env.Program(ast, celgo.CostLimit(costLimit), celgo.EvalOptions(celgo.OptTrackState))
		if err != nil {
			return nil, fmt.Errorf("generating diagnostic program: %w", err)
		}
	}
	return p, nil
}

// Evaluate runs the compiled program against the context data. The data
// map is used as the CEL activation and is never modified. Diagnostics
// are returned only when requested and available.
func (e *Evaluator) Evaluate(ctx context.Context, data map[string]any, expr string, prg any, returnDiagnostics bool) (verdict.Value, *verdict.Diagnostics, error) {
	p, ok := prg.(program)
	if !ok || p.plain == nil {
		return verdict.Value{}, nil, fmt.Errorf("expression %q was not compiled", expr)
	}

	run := p.plain
	if returnDiagnostics && p.diagnosable != nil {
		run = p.diagnosable
	}

	out, _, err := run.ContextEval(ctx, data)
	if err != nil {
		return verdict.Value{}, nil, err
	}

	value, err := refValToValue(out)
	if err != nil {
		return verdict.Value{}, nil, err
	}

	var diagnostics *verdict.Diagnostics
	if returnDiagnostics && p.diagnosable != nil {
		diagnostics = &verdict.Diagnostics{
			Expr:      expr,
			Value:     value,
			InputData: maps.Clone(data),
		}
	}
	return value, diagnostics, nil
}

// newEnv builds a CEL environment with the allow-listed helper
// functions and one declared variable per schema element. An empty
// schema yields an environment where only literal expressions and the
// helpers compile, which makes unknown-field references a compile
// error rather than a silent runtime surprise.
func newEnv(s verdict.Schema) (*celgo.Env, error) {
	opts := helperFunctions()
	for _, el := range s.Elements {
		t, err := celType(el.Type)
		if err != nil {
			return nil, fmt.Errorf("schema element %s: %w", el.Name, err)
		}
		opts = append(opts, celgo.Variable(el.Name, t))
	}
	env, err := celgo.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	return env, nil
}
