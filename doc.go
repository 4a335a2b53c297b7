// Package verdict is a rules engine for grant-evaluation decisions.
//
// Rules are declarative condition → action pairs, grouped by domain
// (for example "grant_evaluation" or "impact_reporting"). Conditions are
// expressions evaluated against a read-only context built by the caller;
// actions write to a separate output accumulator, so a matched rule can
// never change what later rules in the same pass observe.
//
// Typical use:
//
//  1. Declare a schema describing the fields your contexts will carry
//  2. Create a Registry with an expression evaluator (see the cel subpackage)
//  3. Register the domain schema and the domain's rules
//  4. Create an Engine on the registry
//  5. Call Engine.Evaluate with a context map, a domain and a mode
//  6. Inspect the returned Report
//
// Conditions are compiled once, at registration time. A malformed
// condition rejects the registration; it can never enter the registry.
// At evaluation time a failing condition degrades that one rule to a
// non-match with a recorded diagnostic, and never aborts the pass.
//
// # Rule ownership and modification
//
// Rules are immutable once registered. The registry keeps its own copy
// of every rule it accepts, so changes to the caller's copy after
// registration have no effect. To change a rule, call Registry.Update
// with a replacement definition; the registry publishes the new rule
// atomically and bumps its version. Evaluation passes that are already
// in flight continue against the rule set as it was when the pass
// started.
//
// # Concurrency
//
// Many evaluation passes may run in parallel against one registry.
// Readers are lock-free: a pass takes an atomic snapshot of the active
// rule set and never observes a half-applied update. Writers
// (Register, Update, Disable, Enable) serialize with each other.
package verdict
