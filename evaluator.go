package verdict

import "context"

// Value is an evaluation result paired with its verdict type.
type Value struct {
	Val  any
	Type Type
}

// Evaluator is the interface implemented by types that can compile and
// evaluate the condition expressions in rules. The engine does not
// specify an expression language; the cel subpackage provides the
// standard implementation on Google's CEL, whose restricted grammar
// (no loops, no arbitrary calls) keeps rule-author content incapable of
// executing injected code.
type Evaluator interface {
	// Compile pre-processes the expression against the schema, returning
	// a compiled program. The registry stores the program on the rule and
	// provides it back at evaluation time.
	//
	// collectDiagnostics instructs the compiler to retain the extra
	// information needed to return diagnostics during evaluation.
	// dryRun performs all compilation checks but returns no program;
	// it is used to validate rule packs without registering them.
	Compile(expr string, s Schema, collectDiagnostics, dryRun bool) (any, error)

	// Evaluate tests the expression against the context data. program is
	// the value returned by Compile for this expression, or nil if the
	// expression was never compiled. Diagnostics are only returned when
	// returnDiagnostics is set and the program was compiled with
	// collectDiagnostics.
	Evaluate(ctx context.Context, data map[string]any, expr string, program any, returnDiagnostics bool) (Value, *Diagnostics, error)
}
