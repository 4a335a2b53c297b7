// Package cel implements the verdict Evaluator interface on Google's
// cel-go expression engine.
//
// See https://github.com/google/cel-go and https://cel.dev for more
// information about CEL. Rule conditions must conform to the CEL spec:
// https://github.com/google/cel-spec.
//
// CEL is the reason verdict can evaluate operator-authored conditions
// safely: the language has no loops, no imports, no arbitrary attribute
// access and no calls outside the declared function set, so every
// expression has bounded evaluation cost proportional to its size. On
// top of CEL's builtins this package declares three helper functions for
// rule authors:
//
//	len(x)              size of a string, list or map
//	contains(c, item)   membership test on a string, list or map
//	in_range(v, lo, hi) inclusive range test on ints or doubles
//
// Conditions reference context fields by the names declared in the
// domain's schema. Nested map fields are reached with dotted paths
// ("applicant.age"), and presence of an optional nested field can be
// guarded with CEL's has() macro:
//
//	has(applicant.age) && applicant.age > 18
//
// A condition referencing a top-level field absent from the context
// fails evaluation; the engine records the failure and treats the rule
// as a non-match, so optional fields fail closed.
//
// Every program is compiled with a fixed cost limit, bounding the work
// a single evaluation can do.
package cel
