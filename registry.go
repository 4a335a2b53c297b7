package verdict

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Registry holds rule definitions indexed by domain and ID. It is the
// only shared mutable structure in the system: writers serialize on a
// mutex and publish a fresh immutable state through an atomic pointer,
// so concurrent readers are lock-free and always observe a complete,
// consistent rule set. An evaluation pass reads the state once and is
// unaffected by registrations that land mid-pass.
type Registry struct {
	evaluator Evaluator
	opts      RegistryOptions

	mu    sync.Mutex // serializes writers; readers never take it
	state atomic.Pointer[registryState]
}

// registryState is an immutable generation of the registry. Mutations
// clone it, modify the clone and publish it atomically.
type registryState struct {
	domains map[string]*domainSet
}

// domainSet holds one domain's schema and rules, plus the precomputed
// list of enabled rules sorted by ascending ID.
type domainSet struct {
	schema Schema
	rules  map[string]*Rule
	active []*Rule
}

// RegistryOptions control compilation behavior for all rules entering
// the registry. See the functional options below.
type RegistryOptions struct {
	// CollectDiagnostics compiles every condition with the extra state
	// needed to return evaluation diagnostics. Off by default; it makes
	// evaluation slower.
	CollectDiagnostics bool
}

type RegistryOption func(*RegistryOptions)

// CollectDiagnostics compiles rules so that evaluation diagnostics can
// be requested at evaluation time. Default: off.
func CollectDiagnostics(b bool) RegistryOption {
	return func(o *RegistryOptions) {
		o.CollectDiagnostics = b
	}
}

// NewRegistry creates an empty registry that compiles conditions with
// the evaluator.
func NewRegistry(evaluator Evaluator, opts ...RegistryOption) *Registry {
	r := &Registry{evaluator: evaluator}
	for _, opt := range opts {
		opt(&r.opts)
	}
	r.state.Store(&registryState{domains: map[string]*domainSet{}})
	return r
}

// Evaluator returns the evaluator rules in this registry are compiled
// with. The engine uses it to run the compiled conditions.
func (r *Registry) Evaluator() Evaluator {
	return r.evaluator
}

// SetSchema declares the context fields available to the domain's rule
// conditions. It must be called before the domain's first rule is
// registered; changing the schema under compiled rules would invalidate
// their type checks, so a schema update on a populated domain is
// rejected.
func (r *Registry) SetSchema(domain string, s Schema) error {
	if strings.TrimSpace(domain) == "" {
		return fmt.Errorf("missing domain")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Load().clone()
	ds := next.domain(domain)
	if len(ds.rules) > 0 {
		return fmt.Errorf("domain %s already has %d rules; schema must be set before rules are registered", domain, len(ds.rules))
	}
	ds.schema = s
	r.state.Store(next)
	return nil
}

// Schema returns the domain's schema and whether the domain exists.
func (r *Registry) Schema(domain string) (Schema, bool) {
	ds, ok := r.state.Load().domains[domain]
	if !ok {
		return Schema{}, false
	}
	return ds.schema, true
}

// Register validates, compiles and adds new rules. A rule whose ID
// already exists in its domain is rejected with ErrDuplicateRule; use
// Update to replace an existing rule. The call is atomic: if any rule
// fails validation, none of the batch is published.
func (r *Registry) Register(rules ...*Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Load().clone()
	for _, rule := range rules {
		if rule == nil {
			return fmt.Errorf("attempt to register nil rule")
		}
		ds := next.domain(rule.Domain)
		if _, exists := ds.rules[rule.ID]; exists {
			return fmt.Errorf("%w: %s in domain %s", ErrDuplicateRule, rule.ID, rule.Domain)
		}
		c, err := r.ingest(rule, ds.schema)
		if err != nil {
			return err
		}
		c.Version = 1
		ds.rules[c.ID] = c
		ds.rebuildActive()
	}
	r.state.Store(next)
	return nil
}

// Update replaces an existing rule with a new definition, bumping its
// version. The rule must already exist; registering and updating are
// deliberately distinct so a typo in an update cannot silently create a
// new rule.
func (r *Registry) Update(rule *Rule) error {
	if rule == nil {
		return fmt.Errorf("attempt to update nil rule")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Load().clone()
	ds := next.domain(rule.Domain)
	old, exists := ds.rules[rule.ID]
	if !exists {
		return fmt.Errorf("%w: %s in domain %s", ErrRuleNotFound, rule.ID, rule.Domain)
	}
	c, err := r.ingest(rule, ds.schema)
	if err != nil {
		return err
	}
	c.Version = old.Version + 1
	ds.rules[c.ID] = c
	ds.rebuildActive()
	r.state.Store(next)
	return nil
}

// Upsert registers the rule if it is new and updates it otherwise.
// Domain-pack reloads use it so an edited pack file can both add and
// replace rules.
func (r *Registry) Upsert(rule *Rule) error {
	if rule == nil {
		return fmt.Errorf("attempt to upsert nil rule")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Load().clone()
	ds := next.domain(rule.Domain)
	c, err := r.ingest(rule, ds.schema)
	if err != nil {
		return err
	}
	if old, exists := ds.rules[rule.ID]; exists {
		c.Version = old.Version + 1
	} else {
		c.Version = 1
	}
	ds.rules[c.ID] = c
	ds.rebuildActive()
	r.state.Store(next)
	return nil
}

// Disable excludes the rule from evaluation passes without removing it.
// The rule's version is unchanged; disabling is a state flip, not an
// update.
func (r *Registry) Disable(domain, id string) error {
	return r.setEnabled(domain, id, false)
}

// Enable re-includes a disabled rule in evaluation passes.
func (r *Registry) Enable(domain, id string) error {
	return r.setEnabled(domain, id, true)
}

func (r *Registry) setEnabled(domain, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.state.Load().clone()
	ds, ok := next.domains[domain]
	if !ok {
		return fmt.Errorf("%w: %s in domain %s", ErrRuleNotFound, id, domain)
	}
	old, ok := ds.rules[id]
	if !ok {
		return fmt.Errorf("%w: %s in domain %s", ErrRuleNotFound, id, domain)
	}
	c := copyRule(old)
	c.Enabled = enabled
	ds.rules[id] = c
	ds.rebuildActive()
	r.state.Store(next)
	return nil
}

// Active returns the domain's enabled rules, sorted by ascending ID.
// The rules are shared immutable values from the current state; the
// slice itself is the caller's to keep. An unknown domain yields an
// empty slice, not an error.
func (r *Registry) Active(domain string) []*Rule {
	ds, ok := r.state.Load().domains[domain]
	if !ok {
		return nil
	}
	return slices.Clone(ds.active)
}

// Rule returns a copy of the rule with the domain and ID.
func (r *Registry) Rule(domain, id string) (*Rule, bool) {
	ds, ok := r.state.Load().domains[domain]
	if !ok {
		return nil, false
	}
	rule, ok := ds.rules[id]
	if !ok {
		return nil, false
	}
	return copyRule(rule), true
}

// HasDomain reports whether the domain has ever been registered, via a
// schema or a rule.
func (r *Registry) HasDomain(domain string) bool {
	_, ok := r.state.Load().domains[domain]
	return ok
}

// Domains returns the registered domain names, sorted.
func (r *Registry) Domains() []string {
	st := r.state.Load()
	names := make([]string, 0, len(st.domains))
	for name := range st.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RuleCount is the total number of rules across all domains, enabled or
// not.
func (r *Registry) RuleCount() int {
	n := 0
	for _, ds := range r.state.Load().domains {
		n += len(ds.rules)
	}
	return n
}

// ingest validates and compiles a caller-supplied rule, returning the
// private copy the registry will own.
func (r *Registry) ingest(rule *Rule, s Schema) (*Rule, error) {
	if rule == nil {
		return nil, fmt.Errorf("attempt to register nil rule")
	}
	if err := rule.validate(); err != nil {
		return nil, err
	}
	prg, err := r.evaluator.Compile(rule.Condition, s, r.opts.CollectDiagnostics, false)
	if err != nil {
		return nil, fmt.Errorf("compiling rule %s: %w", rule.ID, err)
	}
	c := copyRule(rule)
	c.program = prg
	return c, nil
}

// clone makes a one-generation-deep copy: new domain and rule maps,
// shared immutable rule pointers. Mutations replace rule pointers in the
// clone, so the previous generation remains intact for in-flight
// readers.
func (s *registryState) clone() *registryState {
	next := &registryState{domains: make(map[string]*domainSet, len(s.domains))}
	for name, ds := range s.domains {
		next.domains[name] = &domainSet{
			schema: ds.schema,
			rules:  maps.Clone(ds.rules),
			active: slices.Clone(ds.active),
		}
	}
	return next
}

// domain returns the named set, creating it if needed.
func (s *registryState) domain(name string) *domainSet {
	ds, ok := s.domains[name]
	if !ok {
		ds = &domainSet{rules: map[string]*Rule{}}
		s.domains[name] = ds
	}
	return ds
}

func (d *domainSet) rebuildActive() {
	d.active = d.active[:0]
	for _, rule := range d.rules {
		if rule.Enabled {
			d.active = append(d.active, rule)
		}
	}
	slices.SortFunc(d.active, func(a, b *Rule) int {
		return strings.Compare(a.ID, b.ID)
	})
}

// String returns a table of all registered rules, grouped by domain.
func (r *Registry) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\nVERDICT REGISTRY\n")
	tw.AppendHeader(table.Row{"\nDomain", "\nRule", "\nPriority", "\nCondition", "\nEnabled", "\nVersion"})

	st := r.state.Load()
	for _, domain := range r.Domains() {
		ds := st.domains[domain]
		ids := make([]string, 0, len(ds.rules))
		for id := range ds.rules {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			rule := ds.rules[id]
			tw.AppendRow(table.Row{domain, rule.ID, rule.Priority, rule.Condition, rule.Enabled, rule.Version})
		}
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 40},
	})
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}
