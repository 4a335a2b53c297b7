package loader_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fundscope/verdict"
	"github.com/fundscope/verdict/cel"
	"github.com/fundscope/verdict/loader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const grantPack = `
domain: grant
schema:
  - name: budget
    type: float
    description: requested amount in USD
  - name: org
    type: string
  - name: regions
    type: list
rules:
  - id: high-budget
    priority: 5
    condition: budget > 100000.0
    actions:
      - kind: add_flag
        flag: high_budget
      - kind: add_score
        field: risk
        score: 2.0
  - id: named-org
    priority: 3
    condition: org.startsWith("Acme")
    enabled: false
    actions:
      - kind: append_recommendation
        text: route to the Acme portfolio team
`

func writePack(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParsePack(t *testing.T) {
	pack, err := loader.ParsePack([]byte(grantPack))
	require.NoError(t, err)

	assert.Equal(t, "grant", pack.Domain)
	assert.Equal(t, "grant", pack.Schema.ID)
	require.Len(t, pack.Schema.Elements, 3)
	assert.Equal(t, "budget", pack.Schema.Elements[0].Name)
	assert.IsType(t, verdict.Float{}, pack.Schema.Elements[0].Type)
	assert.Equal(t, "requested amount in USD", pack.Schema.Elements[0].Description)
	assert.IsType(t, verdict.String{}, pack.Schema.Elements[1].Type)
	assert.IsType(t, verdict.List{}, pack.Schema.Elements[2].Type)

	require.Len(t, pack.Rules, 2)

	high := pack.Rules[0]
	assert.Equal(t, "high-budget", high.ID)
	assert.Equal(t, 5, high.Priority)
	assert.True(t, high.Enabled) // enabled defaults to true
	require.Len(t, high.Actions, 2)
	assert.Equal(t, verdict.AddFlag, high.Actions[0].Kind)
	assert.Equal(t, "high_budget", high.Actions[0].Flag)
	assert.Equal(t, verdict.AddScore, high.Actions[1].Kind)
	assert.Equal(t, 2.0, high.Actions[1].Score)

	named := pack.Rules[1]
	assert.False(t, named.Enabled)
	assert.Equal(t, verdict.AppendRecommendation, named.Actions[0].Kind)
}

func TestParsePackRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not yaml", `{{{`},
		{"no domain", "rules:\n  - id: r1\n    condition: 'true'\n"},
		{"unknown schema type", "domain: grant\nschema:\n  - name: x\n    type: matrix\n"},
		{"unknown action kind", "domain: grant\nrules:\n  - id: r1\n    condition: 'true'\n    actions:\n      - kind: launch_missiles\n"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := loader.ParsePack([]byte(c.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "grant.yaml", grantPack)
	writePack(t, dir, "impact.yml", `
domain: impact
schema:
  - name: beneficiaries
    type: int
rules:
  - id: wide-reach
    priority: 1
    condition: beneficiaries > 1000
    actions:
      - kind: add_flag
        flag: wide_reach
`)
	writePack(t, dir, "notes.txt", "not a pack") // ignored

	registry := verdict.NewRegistry(cel.NewEvaluator())
	require.NoError(t, loader.NewLoader(registry, nil).LoadDir(dir))

	assert.Equal(t, []string{"grant", "impact"}, registry.Domains())
	assert.Equal(t, 3, registry.RuleCount())

	// The disabled rule is registered but not active.
	active := registry.Active("grant")
	require.Len(t, active, 1)
	assert.Equal(t, "high-budget", active[0].ID)

	rule, ok := registry.Rule("grant", "named-org")
	require.True(t, ok)
	assert.False(t, rule.Enabled)
}

func TestLoadFileTwiceConflicts(t *testing.T) {
	dir := t.TempDir()
	path := writePack(t, dir, "grant.yaml", grantPack)

	registry := verdict.NewRegistry(cel.NewEvaluator())
	l := loader.NewLoader(registry, nil)

	require.NoError(t, l.LoadFile(path))
	assert.Error(t, l.LoadFile(path)) // duplicate rule IDs
}

func TestReloadUpserts(t *testing.T) {
	dir := t.TempDir()
	path := writePack(t, dir, "grant.yaml", grantPack)

	registry := verdict.NewRegistry(cel.NewEvaluator())
	l := loader.NewLoader(registry, nil)
	require.NoError(t, l.LoadFile(path))

	// Edit the pack: lower the threshold.
	edited := []byte(`
domain: grant
schema:
  - name: budget
    type: float
  - name: org
    type: string
  - name: regions
    type: list
rules:
  - id: high-budget
    priority: 5
    condition: budget > 50000.0
    actions:
      - kind: add_flag
        flag: high_budget
`)
	require.NoError(t, os.WriteFile(path, edited, 0o644))
	require.NoError(t, l.Reload(path))

	rule, ok := registry.Rule("grant", "high-budget")
	require.True(t, ok)
	assert.Equal(t, "budget > 50000.0", rule.Condition)
	assert.Equal(t, 2, rule.Version)
}

// A pack whose condition does not compile must leave the registry
// untouched.
func TestLoadFileBadConditionRejected(t *testing.T) {
	dir := t.TempDir()
	path := writePack(t, dir, "bad.yaml", `
domain: grant
schema:
  - name: budget
    type: float
rules:
  - id: broken
    condition: budget >>> 1.0
`)

	registry := verdict.NewRegistry(cel.NewEvaluator())
	assert.Error(t, loader.NewLoader(registry, nil).LoadFile(path))
	assert.Equal(t, 0, registry.RuleCount())
}

func TestValidate(t *testing.T) {
	good := t.TempDir()
	writePack(t, good, "grant.yaml", grantPack)
	assert.NoError(t, loader.Validate(good, cel.NewEvaluator()))

	bad := t.TempDir()
	writePack(t, bad, "grant.yaml", `
domain: grant
rules:
  - id: broken
    condition: unknown_field > 1
`)
	assert.Error(t, loader.Validate(bad, cel.NewEvaluator()))
}

func TestWatchReloadsEditedPack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}

	dir := t.TempDir()
	path := writePack(t, dir, "grant.yaml", grantPack)

	registry := verdict.NewRegistry(cel.NewEvaluator())
	l := loader.NewLoader(registry, nil)
	require.NoError(t, l.LoadFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx, dir) }()

	// Give the watcher time to attach before writing.
	time.Sleep(200 * time.Millisecond)

	edited := []byte(`
domain: grant
schema:
  - name: budget
    type: float
  - name: org
    type: string
  - name: regions
    type: list
rules:
  - id: high-budget
    priority: 9
    condition: budget > 100000.0
`)
	require.NoError(t, os.WriteFile(path, edited, 0o644))

	// The reload is asynchronous; poll for the version bump.
	deadline := time.After(5 * time.Second)
	for {
		rule, ok := registry.Rule("grant", "high-budget")
		if ok && rule.Version == 2 {
			assert.Equal(t, 9, rule.Priority)
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher never applied the edited pack")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
