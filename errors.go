package verdict

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrRuleNotFound is returned when an update or state change names a
	// rule that is not in the registry.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRule is returned when Register is called with a rule ID
	// that already exists in the target domain. Use Update to replace it.
	ErrDuplicateRule = errors.New("duplicate rule")

	// ErrUnknownDomain is returned by Engine.Evaluate when the engine was
	// built with StrictDomains and the requested domain has never been
	// registered.
	ErrUnknownDomain = errors.New("unknown domain")

	// ErrInvalidMode is returned by Engine.Evaluate when the mode is not
	// one of FirstMatch, AllMatch or PriorityGroup. This is a caller
	// error and is rejected before any rule is evaluated.
	ErrInvalidMode = errors.New("invalid evaluation mode")
)

// EvaluationError records the failure of a single condition evaluation:
// a type mismatch, a reference to a field missing from the context, or an
// evaluator limit being exceeded. The engine converts it into a non-match
// for that one rule; it never aborts the pass.
type EvaluationError struct {
	RuleID string
	Expr   string
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating rule %s: %v", e.RuleID, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// MarshalJSON flattens the wrapped error to a message string so reports
// containing diagnostics serialize cleanly.
func (e *EvaluationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RuleID  string `json:"rule_id"`
		Expr    string `json:"expr"`
		Message string `json:"message"`
	}{
		RuleID:  e.RuleID,
		Expr:    e.Expr,
		Message: e.Err.Error(),
	})
}
