package verdict_test

import (
	"math/rand"
	"testing"

	"github.com/fundscope/verdict"
)

// Descending priority, ascending ID tie-break: given priorities
// [10, 5, 10, 1] with IDs [b, a, a2, c], the order must be
// a(10), a2(10), b(5), c(1).
func TestScheduleOrder(t *testing.T) {
	rules := []*verdict.Rule{
		verdict.NewRule("b", "grant", "true").WithPriority(5),
		verdict.NewRule("a", "grant", "true").WithPriority(10),
		verdict.NewRule("a2", "grant", "true").WithPriority(10),
		verdict.NewRule("c", "grant", "true").WithPriority(1),
	}

	want := []string{"a", "a2", "b", "c"}

	ordered := verdict.Schedule(rules)
	if len(ordered) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(ordered))
	}
	for i, id := range want {
		if ordered[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, ordered[i].ID)
		}
	}
}

// The same rule set must schedule identically regardless of input
// order.
func TestScheduleDeterministic(t *testing.T) {
	rules := []*verdict.Rule{
		verdict.NewRule("r1", "grant", "true").WithPriority(3),
		verdict.NewRule("r2", "grant", "true").WithPriority(3),
		verdict.NewRule("r3", "grant", "true").WithPriority(7),
		verdict.NewRule("r4", "grant", "true").WithPriority(1),
		verdict.NewRule("r5", "grant", "true").WithPriority(7),
	}

	reference := verdict.Schedule(rules)

	for i := 0; i < 50; i++ {
		shuffled := make([]*verdict.Rule, len(rules))
		copy(shuffled, rules)
		rand.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := verdict.Schedule(shuffled)
		for j := range reference {
			if got[j].ID != reference[j].ID {
				t.Fatalf("iteration %d: position %d: expected %s, got %s",
					i, j, reference[j].ID, got[j].ID)
			}
		}
	}
}

// Schedule must not reorder its input slice.
func TestScheduleDoesNotMutateInput(t *testing.T) {
	rules := []*verdict.Rule{
		verdict.NewRule("z", "grant", "true").WithPriority(1),
		verdict.NewRule("a", "grant", "true").WithPriority(9),
	}

	verdict.Schedule(rules)

	if rules[0].ID != "z" || rules[1].ID != "a" {
		t.Fatalf("input slice was reordered: [%s, %s]", rules[0].ID, rules[1].ID)
	}
}
