package verdict_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fundscope/verdict"
)

// mockEvaluator provides minimal evaluation for engine and registry
// tests. It understands a handful of literal expressions:
//
//	"true", "false"  evaluate to the corresponding bool
//	"fail"           returns an evaluation error
//	"notbool"        produces a string value instead of a bool
//	"parsefail"      fails compilation
//
// An artificial evaluation delay can be set to exercise the engine's
// time-budget handling.
type mockEvaluator struct {
	evalDelay time.Duration
}

type mockProgram struct {
	compiledDiagnostics bool
}

func newMockEvaluator() *mockEvaluator {
	return &mockEvaluator{}
}

func (m *mockEvaluator) Compile(expr string, s verdict.Schema, collectDiagnostics, dryRun bool) (any, error) {
	if strings.Contains(expr, "parsefail") {
		return nil, fmt.Errorf("compiling expression %q: syntax error", expr)
	}
	if dryRun {
		return nil, nil
	}
	return mockProgram{compiledDiagnostics: collectDiagnostics}, nil
}

func (m *mockEvaluator) Evaluate(ctx context.Context, data map[string]any, expr string, program any, returnDiagnostics bool) (verdict.Value, *verdict.Diagnostics, error) {
	if m.evalDelay > 0 {
		time.Sleep(m.evalDelay)
	}

	p, ok := program.(mockProgram)
	if !ok {
		return verdict.Value{}, nil, fmt.Errorf("expression %q was not compiled", expr)
	}

	var diagnostics *verdict.Diagnostics
	if returnDiagnostics && p.compiledDiagnostics {
		diagnostics = &verdict.Diagnostics{Expr: expr}
	}

	switch expr {
	case "true":
		return verdict.Value{Val: true, Type: verdict.Bool{}}, diagnostics, nil
	case "false":
		return verdict.Value{Val: false, Type: verdict.Bool{}}, diagnostics, nil
	case "fail":
		return verdict.Value{}, nil, fmt.Errorf("no such attribute")
	case "notbool":
		return verdict.Value{Val: "a string", Type: verdict.String{}}, diagnostics, nil
	default:
		return verdict.Value{Val: false, Type: verdict.Bool{}}, diagnostics, nil
	}
}
