// Package loader reads externally authored domain packs and registers
// their rules. Packs are YAML files, one domain per file, carrying the
// domain's schema and its rules; this is the only sanctioned way rules
// enter the system. The loader can also read rule definitions persisted
// in Postgres (see PostgresSource) and hot-reload edited pack files
// (see Loader.Watch).
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fundscope/verdict"

	"gopkg.in/yaml.v3"
)

// Pack is one parsed domain-pack file.
type Pack struct {
	Domain string
	Schema verdict.Schema
	Rules  []*verdict.Rule
}

// Loader registers packs into a registry.
type Loader struct {
	registry *verdict.Registry
	logger   *slog.Logger
}

// NewLoader creates a loader registering into the registry. A nil
// logger falls back to slog.Default().
func NewLoader(registry *verdict.Registry, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{registry: registry, logger: logger}
}

// LoadFile parses the pack file and registers its schema and rules. A
// rule that already exists in the domain is an error; use Watch (or
// Reload) for upsert semantics on edited files.
func (l *Loader) LoadFile(path string) error {
	return l.applyFile(path, false)
}

// Reload re-applies an edited pack file: new rules are registered,
// existing ones replaced with a version bump. The domain's schema
// cannot change once rules exist.
func (l *Loader) Reload(path string) error {
	return l.applyFile(path, true)
}

// LoadDir loads every .yaml/.yml pack in the directory, in name order
// so startup registration is deterministic.
func (l *Loader) LoadDir(dir string) error {
	paths, err := packFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := l.LoadFile(path); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) applyFile(path string, upsert bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading pack %s: %w", path, err)
	}
	pack, err := ParsePack(raw)
	if err != nil {
		return fmt.Errorf("parsing pack %s: %w", path, err)
	}

	if !l.registry.HasDomain(pack.Domain) {
		if err := l.registry.SetSchema(pack.Domain, pack.Schema); err != nil {
			return fmt.Errorf("pack %s: %w", path, err)
		}
	}

	for _, rule := range pack.Rules {
		if upsert {
			err = l.registry.Upsert(rule)
		} else {
			err = l.registry.Register(rule)
		}
		if err != nil {
			return fmt.Errorf("pack %s: %w", path, err)
		}
	}

	l.logger.Info("loaded domain pack",
		slog.String("path", path),
		slog.String("domain", pack.Domain),
		slog.Int("rules", len(pack.Rules)))
	return nil
}

func packFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading pack directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// packFile is the YAML shape of a domain pack.
type packFile struct {
	Domain string        `yaml:"domain"`
	Schema []packElement `yaml:"schema"`
	Rules  []packRule    `yaml:"rules"`
}

type packElement struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

type packRule struct {
	ID        string       `yaml:"id"`
	Priority  int          `yaml:"priority"`
	Condition string       `yaml:"condition"`
	Enabled   *bool        `yaml:"enabled"`
	Actions   []packAction `yaml:"actions"`
}

// packAction carries every kind's payload; Kind selects which fields
// are read. Tagged for both YAML (pack files) and JSON (the Postgres
// actions column).
type packAction struct {
	Kind  string  `yaml:"kind" json:"kind"`
	Field string  `yaml:"field,omitempty" json:"field,omitempty"`
	Value any     `yaml:"value,omitempty" json:"value,omitempty"`
	Flag  string  `yaml:"flag,omitempty" json:"flag,omitempty"`
	Text  string  `yaml:"text,omitempty" json:"text,omitempty"`
	Score float64 `yaml:"score,omitempty" json:"score,omitempty"`
}

// ParsePack parses a domain-pack document. Parsing validates shape
// (domain present, known types and action kinds); condition syntax is
// checked later, when the rule is compiled at registration.
func ParsePack(raw []byte) (*Pack, error) {
	var pf packFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, err
	}
	if strings.TrimSpace(pf.Domain) == "" {
		return nil, fmt.Errorf("pack has no domain")
	}

	pack := &Pack{Domain: pf.Domain}
	pack.Schema.ID = pf.Domain
	for _, el := range pf.Schema {
		t, err := parseType(el.Type)
		if err != nil {
			return nil, fmt.Errorf("schema element %s: %w", el.Name, err)
		}
		pack.Schema.Elements = append(pack.Schema.Elements, verdict.DataElement{
			Name:        el.Name,
			Type:        t,
			Description: el.Description,
		})
	}

	for _, pr := range pf.Rules {
		rule := verdict.NewRule(pr.ID, pf.Domain, pr.Condition).WithPriority(pr.Priority)
		if pr.Enabled != nil {
			rule.Enabled = *pr.Enabled
		}
		actions, err := convertActions(pr.Actions)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", pr.ID, err)
		}
		rule.Actions = actions
		pack.Rules = append(pack.Rules, rule)
	}
	return pack, nil
}

func convertActions(in []packAction) ([]verdict.Action, error) {
	var out []verdict.Action
	for i, pa := range in {
		kind, err := verdict.ParseActionKind(pa.Kind)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, verdict.Action{
			Kind:  kind,
			Field: pa.Field,
			Value: pa.Value,
			Flag:  pa.Flag,
			Text:  pa.Text,
			Score: pa.Score,
		})
	}
	return out, nil
}

// parseType maps pack type names to verdict types. Lists and maps take
// untyped values; conditions that need typed elements convert with
// CEL's conversion functions.
func parseType(s string) (verdict.Type, error) {
	switch s {
	case "string":
		return verdict.String{}, nil
	case "int":
		return verdict.Int{}, nil
	case "float":
		return verdict.Float{}, nil
	case "bool":
		return verdict.Bool{}, nil
	case "any", "":
		return verdict.Any{}, nil
	case "duration":
		return verdict.Duration{}, nil
	case "timestamp":
		return verdict.Timestamp{}, nil
	case "list":
		return verdict.List{ValueType: verdict.Any{}}, nil
	case "map":
		return verdict.Map{KeyType: verdict.String{}, ValueType: verdict.Any{}}, nil
	default:
		return nil, fmt.Errorf("unknown type %q", s)
	}
}

// Validate dry-run compiles every pack in the directory without
// touching a registry: pack shape, schema types, action kinds and
// condition syntax are all checked. Used by operators before shipping a
// pack, and by the CLI validate command.
func Validate(dir string, evaluator verdict.Evaluator) error {
	paths, err := packFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading pack %s: %w", path, err)
		}
		pack, err := ParsePack(raw)
		if err != nil {
			return fmt.Errorf("parsing pack %s: %w", path, err)
		}
		scratch := verdict.NewRegistry(evaluator)
		if err := scratch.SetSchema(pack.Domain, pack.Schema); err != nil {
			return fmt.Errorf("pack %s: %w", path, err)
		}
		if err := scratch.Register(pack.Rules...); err != nil {
			return fmt.Errorf("pack %s: %w", path, err)
		}
	}
	return nil
}
