package verdict

import (
	"cmp"
	"slices"
)

// Schedule returns the rules in execution order: descending priority,
// ties broken by ascending rule ID. The order is a deterministic
// function of the rule set alone, so repeated passes over the same
// rules always execute them identically — grant decisions must be
// reproducible.
//
// Schedule performs no filtering; the engine restricts the input to the
// enabled rules of the target domain before calling it.
func Schedule(rules []*Rule) []*Rule {
	ordered := slices.Clone(rules)
	slices.SortFunc(ordered, compareRules)
	return ordered
}

func compareRules(a, b *Rule) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
