package verdict_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fundscope/verdict"
	"github.com/matryer/is"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	is := is.New(t)

	r := verdict.NewRegistry(newMockEvaluator())

	rule := verdict.NewRule("high-budget", "grant", "true").
		WithPriority(5).
		WithActions(verdict.Flag("high_budget"))

	is.NoErr(r.Register(rule))
	is.Equal(1, r.RuleCount())
	is.True(r.HasDomain("grant"))

	got, ok := r.Rule("grant", "high-budget")
	is.True(ok)
	is.Equal(1, got.Version)
	is.Equal(5, got.Priority)

	// The registry owns its copy; mutating the caller's rule after
	// registration must not be visible.
	rule.Priority = 99
	got, _ = r.Rule("grant", "high-budget")
	is.Equal(5, got.Priority)
}

func TestRegistryDuplicateRejected(t *testing.T) {
	is := is.New(t)

	r := verdict.NewRegistry(newMockEvaluator())
	is.NoErr(r.Register(verdict.NewRule("r1", "grant", "true")))

	err := r.Register(verdict.NewRule("r1", "grant", "false"))
	is.True(errors.Is(err, verdict.ErrDuplicateRule))
	is.Equal(1, r.RuleCount())
}

func TestRegistryValidation(t *testing.T) {
	r := verdict.NewRegistry(newMockEvaluator())

	cases := []struct {
		name string
		rule *verdict.Rule
	}{
		{"missing id", verdict.NewRule("", "grant", "true")},
		{"banned id characters", verdict.NewRule("a/b", "grant", "true")},
		{"missing domain", verdict.NewRule("r1", "", "true")},
		{"missing condition", verdict.NewRule("r1", "grant", "")},
		{"condition does not parse", verdict.NewRule("r1", "grant", "parsefail")},
		{"bad action payload", verdict.NewRule("r1", "grant", "true").
			WithActions(verdict.Action{Kind: verdict.AddFlag})},
		{"unknown action kind", verdict.NewRule("r1", "grant", "true").
			WithActions(verdict.Action{Kind: verdict.ActionKind(42)})},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := r.Register(c.rule); err == nil {
				t.Fatal("expected registration to fail")
			}
			if r.RuleCount() != 0 {
				t.Fatalf("rejected rule entered the registry")
			}
		})
	}
}

// A batch with one invalid rule must publish nothing.
func TestRegistryBatchIsAtomic(t *testing.T) {
	is := is.New(t)

	r := verdict.NewRegistry(newMockEvaluator())
	err := r.Register(
		verdict.NewRule("ok", "grant", "true"),
		verdict.NewRule("bad", "grant", "parsefail"),
	)
	is.True(err != nil)
	is.Equal(0, r.RuleCount())
}

func TestRegistryUpdateBumpsVersion(t *testing.T) {
	is := is.New(t)

	r := verdict.NewRegistry(newMockEvaluator())
	rule := verdict.NewRule("r1", "grant", "true").WithPriority(5)
	is.NoErr(r.Register(rule))

	// Re-registering an identical definition changes nothing but the
	// version.
	is.NoErr(r.Update(rule))
	got, ok := r.Rule("grant", "r1")
	is.True(ok)
	is.Equal(2, got.Version)
	is.Equal(5, got.Priority)
	is.Equal("true", got.Condition)

	// Update on a rule that was never registered is an error, not an
	// implicit create.
	err := r.Update(verdict.NewRule("ghost", "grant", "true"))
	is.True(errors.Is(err, verdict.ErrRuleNotFound))
}

func TestRegistryUpsert(t *testing.T) {
	is := is.New(t)

	r := verdict.NewRegistry(newMockEvaluator())
	is.NoErr(r.Upsert(verdict.NewRule("r1", "grant", "true")))
	got, _ := r.Rule("grant", "r1")
	is.Equal(1, got.Version)

	is.NoErr(r.Upsert(verdict.NewRule("r1", "grant", "false")))
	got, _ = r.Rule("grant", "r1")
	is.Equal(2, got.Version)
	is.Equal("false", got.Condition)
}

func TestRegistryDisableEnable(t *testing.T) {
	is := is.New(t)

	r := verdict.NewRegistry(newMockEvaluator())
	is.NoErr(r.Register(
		verdict.NewRule("r1", "grant", "true"),
		verdict.NewRule("r2", "grant", "true"),
	))
	is.Equal(2, len(r.Active("grant")))

	is.NoErr(r.Disable("grant", "r1"))
	active := r.Active("grant")
	is.Equal(1, len(active))
	is.Equal("r2", active[0].ID)

	// Disable is a state flip, not an update; the version is unchanged.
	got, _ := r.Rule("grant", "r1")
	is.Equal(1, got.Version)
	is.Equal(false, got.Enabled)

	is.NoErr(r.Enable("grant", "r1"))
	is.Equal(2, len(r.Active("grant")))

	err := r.Disable("grant", "missing")
	is.True(errors.Is(err, verdict.ErrRuleNotFound))
}

func TestRegistryActiveSortedByID(t *testing.T) {
	is := is.New(t)

	r := verdict.NewRegistry(newMockEvaluator())
	is.NoErr(r.Register(
		verdict.NewRule("zebra", "grant", "true"),
		verdict.NewRule("apple", "grant", "true"),
		verdict.NewRule("mango", "grant", "true"),
	))

	active := r.Active("grant")
	is.Equal(3, len(active))
	is.Equal("apple", active[0].ID)
	is.Equal("mango", active[1].ID)
	is.Equal("zebra", active[2].ID)

	is.Equal(0, len(r.Active("unknown")))
}

func TestRegistrySchemaBeforeRules(t *testing.T) {
	is := is.New(t)

	r := verdict.NewRegistry(newMockEvaluator())
	is.NoErr(r.SetSchema("grant", verdict.Schema{
		Elements: []verdict.DataElement{{Name: "budget", Type: verdict.Float{}}},
	}))
	is.NoErr(r.Register(verdict.NewRule("r1", "grant", "true")))

	// Changing the schema under compiled rules is rejected.
	err := r.SetSchema("grant", verdict.Schema{})
	is.True(err != nil)

	s, ok := r.Schema("grant")
	is.True(ok)
	is.Equal(1, len(s.Elements))
}

func TestRegistryDomainsIsolated(t *testing.T) {
	is := is.New(t)

	r := verdict.NewRegistry(newMockEvaluator())
	is.NoErr(r.Register(
		verdict.NewRule("r1", "grant_evaluation", "true"),
		verdict.NewRule("r1", "impact_reporting", "true"), // same ID, different domain
	))

	is.Equal([]string{"grant_evaluation", "impact_reporting"}, r.Domains())
	is.Equal(1, len(r.Active("grant_evaluation")))
	is.Equal(1, len(r.Active("impact_reporting")))
}

// Concurrent registration while many passes read the same domain: no
// pass may observe a partially-initialized rule. Run with -race.
func TestRegistryConcurrentReadersAndWriters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}

	r := verdict.NewRegistry(newMockEvaluator())
	engine := verdict.NewEngine(r)

	for i := 0; i < 10; i++ {
		if err := r.Register(verdict.NewRule(fmt.Sprintf("seed-%02d", i), "grant", "true").WithPriority(i)); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Writers: register new rules and update existing ones.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			rule := verdict.NewRule(fmt.Sprintf("new-%03d", i), "grant", "true").
				WithPriority(i).
				WithActions(verdict.Flag("flagged"))
			if err := r.Register(rule); err != nil {
				t.Error(err)
				return
			}
			if err := r.Update(verdict.NewRule("seed-00", "grant", "false")); err != nil {
				t.Error(err)
				return
			}
		}
		close(stop)
	}()

	// Readers: 100 concurrent passes looping until the writer is done.
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				report, err := engine.Evaluate(context.Background(), "grant", map[string]any{}, verdict.AllMatch)
				if err != nil {
					t.Error(err)
					return
				}
				// Every rule in the snapshot must be fully formed:
				// evaluated cleanly, against a compiled program.
				for _, res := range report.Results {
					if res.Err != nil {
						t.Errorf("rule %s: %v", res.RuleID, res.Err)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
}
