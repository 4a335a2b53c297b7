package verdict

import (
	"fmt"
	"slices"
	"strings"
)

// A Rule pairs a condition with the actions to apply when the condition
// is true. Rules are grouped by domain; within a domain every rule has a
// unique ID. Higher Priority runs first; ties are broken by ascending ID
// so evaluation order is deterministic regardless of registration order.
//
// A rule is immutable once registered: the registry stores its own copy,
// and updates replace the whole rule rather than mutating it.
type Rule struct {
	// A rule identifier, unique within the domain. (required)
	// May not contain '/' or whitespace; the ID is used as a path
	// segment in metrics and report keys.
	ID string `json:"id"`

	// The domain grouping this rule belongs to, e.g. "grant_evaluation".
	Domain string `json:"domain"`

	// Execution priority. Higher priorities are evaluated first.
	// There is no uniqueness constraint; rules sharing a priority form
	// a tier (see PriorityGroup mode).
	Priority int `json:"priority"`

	// The condition expression. It must produce a boolean when
	// evaluated against a context matching the domain's schema.
	// Compiled once at registration; a parse or type-check error
	// rejects the registration.
	Condition string `json:"condition"`

	// Actions applied, in order, when the condition is true. Actions
	// write to the pass's output accumulator, never to the context.
	Actions []Action `json:"actions"`

	// Disabled rules stay in the registry but are excluded from
	// evaluation passes.
	Enabled bool `json:"enabled"`

	// Monotonic counter, set by the registry: 1 on Register, bumped on
	// every Update. Values supplied by the caller are ignored.
	Version int `json:"version"`

	// A reference to any object. Not used by the engine.
	Meta any `json:"-"`

	// Compiled form of Condition, set by the registry when the rule is
	// accepted. Provided back to the evaluator at evaluation time.
	program any
}

// Rule IDs appear as path segments in metrics keys and report lookups.
const bannedIDCharacters = "/ \t\n"

// NewRule returns an enabled rule with the ID, domain and condition.
func NewRule(id, domain, condition string) *Rule {
	return &Rule{
		ID:        id,
		Domain:    domain,
		Condition: condition,
		Enabled:   true,
	}
}

// WithPriority sets the rule's priority and returns the rule, for
// chained construction in domain-pack loaders and tests.
func (r *Rule) WithPriority(p int) *Rule {
	r.Priority = p
	return r
}

// WithActions appends actions to the rule and returns the rule.
func (r *Rule) WithActions(actions ...Action) *Rule {
	r.Actions = append(r.Actions, actions...)
	return r
}

// validate checks the parts of a rule that do not require the evaluator:
// identifier shape, domain presence and action payloads. The condition
// itself is checked by compiling it.
func (r *Rule) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule with condition %q: missing rule ID", r.Condition)
	}
	if strings.ContainsAny(r.ID, bannedIDCharacters) {
		return fmt.Errorf("rule ID %q may not contain any of %q", r.ID, bannedIDCharacters)
	}
	if strings.TrimSpace(r.Domain) == "" {
		return fmt.Errorf("rule %s: missing domain", r.ID)
	}
	if strings.TrimSpace(r.Condition) == "" {
		return fmt.Errorf("rule %s: missing condition", r.ID)
	}
	for i, a := range r.Actions {
		if err := a.validate(); err != nil {
			return fmt.Errorf("rule %s: action %d: %w", r.ID, i, err)
		}
	}
	return nil
}

// copyRule returns a copy the registry can own. The action slice is
// cloned; the compiled program and Meta are shared references.
func copyRule(r *Rule) *Rule {
	c := *r
	c.Actions = slices.Clone(r.Actions)
	return &c
}

// ruleKey is the "domain/id" key used by the metrics collector.
func ruleKey(domain, id string) string {
	return domain + "/" + id
}
