package verdict

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Mode selects how a pass handles multiple matching rules.
type Mode int

const (
	// FirstMatch stops after the first rule whose condition is true, in
	// scheduled order. Only that rule's actions apply.
	FirstMatch Mode = iota

	// AllMatch evaluates every rule; every matched rule's actions apply
	// in scheduled order.
	AllMatch

	// PriorityGroup evaluates every rule but applies actions only from
	// the highest-priority tier that has at least one match. Ties within
	// the tier all apply, in scheduled order.
	PriorityGroup
)

func (m Mode) String() string {
	switch m {
	case FirstMatch:
		return "first-match"
	case AllMatch:
		return "all-match"
	case PriorityGroup:
		return "priority-group"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a mode name ("first-match", "all-match",
// "priority-group") as used by the API layer and the CLI.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "first-match":
		return FirstMatch, nil
	case "all-match":
		return AllMatch, nil
	case "priority-group":
		return PriorityGroup, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Engine orchestrates evaluation passes over a registry's rules. It
// holds no mutable state of its own; any number of passes may run
// concurrently on one engine.
type Engine struct {
	registry *Registry
	metrics  *Collector
	logger   *slog.Logger
	opts     EngineOptions
}

// EngineOptions control pass behavior for all evaluations on the
// engine. See the functional options below.
type EngineOptions struct {
	// StrictDomains makes a pass against a never-registered domain an
	// error instead of an empty report.
	StrictDomains bool
}

type EngineOption func(*Engine)

// StrictDomains rejects passes against unknown domains with
// ErrUnknownDomain. By default an unknown domain yields an empty
// report.
func StrictDomains(b bool) EngineOption {
	return func(e *Engine) {
		e.opts.StrictDomains = b
	}
}

// WithCollector records every pass to the collector. Recording never
// influences or fails the pass.
func WithCollector(c *Collector) EngineOption {
	return func(e *Engine) {
		e.metrics = c
	}
}

// WithLogger sets the logger used to report swallowed metrics-recording
// failures. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine evaluating the registry's rules with the
// registry's evaluator.
func NewEngine(registry *Registry, opts ...EngineOption) *Engine {
	e := &Engine{registry: registry}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// EvalOptions control a single evaluation pass.
type EvalOptions struct {
	// ReturnDiagnostics attaches evaluation diagnostics to each rule
	// result. Requires the registry to have been built with
	// CollectDiagnostics.
	ReturnDiagnostics bool

	// ContextRef is the caller's audit reference for the context this
	// pass ran against. If empty, the engine generates one.
	ContextRef string

	// Budget bounds the pass by wall clock in addition to any deadline
	// already on the context. When exceeded, remaining rules are marked
	// skipped and the partial report is returned flagged incomplete.
	Budget time.Duration
}

type EvalOption func(*EvalOptions)

// ReturnDiagnostics requests per-rule evaluation diagnostics in the
// report. Default: off.
func ReturnDiagnostics(b bool) EvalOption {
	return func(o *EvalOptions) {
		o.ReturnDiagnostics = b
	}
}

// WithContextRef sets the audit reference recorded on the report for
// the input context.
func WithContextRef(ref string) EvalOption {
	return func(o *EvalOptions) {
		o.ContextRef = ref
	}
}

// WithBudget bounds the pass by the wall-clock duration.
func WithBudget(d time.Duration) EvalOption {
	return func(o *EvalOptions) {
		o.Budget = d
	}
}

// Evaluate runs one pass: it snapshots the domain's active rules,
// schedules them, tests each condition against data and applies matched
// rules' actions to the report's output accumulator according to mode.
//
// The input data is read-only to the engine; all side effects land in
// the report. A condition error degrades that rule to a non-match with
// the error recorded on its result. A pass against a domain with no
// rules returns an empty report. If the context deadline (or the
// WithBudget option) expires mid-pass, remaining rules are marked
// skipped and the partial report is returned with Incomplete set.
func (e *Engine) Evaluate(ctx context.Context, domain string, data map[string]any, mode Mode, opts ...EvalOption) (*Report, error) {
	if mode < FirstMatch || mode > PriorityGroup {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var o EvalOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.ReturnDiagnostics && !e.registry.opts.CollectDiagnostics {
		return nil, fmt.Errorf("diagnostics requested, but the registry was not built with the CollectDiagnostics option")
	}
	if o.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Budget)
		defer cancel()
	}

	active := e.registry.Active(domain)
	if len(active) == 0 && e.opts.StrictDomains && !e.registry.HasDomain(domain) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}

	start := time.Now()
	report := &Report{
		PassID:     uuid.NewString(),
		Domain:     domain,
		Mode:       mode,
		ContextRef: o.ContextRef,
		StartedAt:  start,
		Output:     newOutput(),
		Results:    make([]RuleResult, 0, len(active)),
	}
	if report.ContextRef == "" {
		report.ContextRef = uuid.NewString()
	}

	ordered := Schedule(active)
	evaluator := e.registry.Evaluator()

	// Matched rules and the index of their result, needed by
	// PriorityGroup to apply the winning tier after the loop.
	type match struct {
		rule *Rule
		idx  int
	}
	var matches []match
	timedOut := false

	for _, rule := range ordered {
		if !timedOut && ctx.Err() != nil {
			timedOut = true
		}
		if timedOut {
			report.Results = append(report.Results, RuleResult{RuleID: rule.ID, Skipped: true})
			continue
		}

		res := e.evalCondition(ctx, evaluator, rule, data, o.ReturnDiagnostics)
		report.Results = append(report.Results, res)
		idx := len(report.Results) - 1

		if !res.Matched {
			continue
		}
		switch mode {
		case FirstMatch:
			e.applyActions(report, idx, rule)
		case AllMatch:
			e.applyActions(report, idx, rule)
		case PriorityGroup:
			matches = append(matches, match{rule: rule, idx: idx})
		}
		if mode == FirstMatch {
			break
		}
	}

	if mode == PriorityGroup && len(matches) > 0 {
		// Matches arrive in scheduled order, so the first one carries the
		// winning tier's priority.
		tier := matches[0].rule.Priority
		for _, m := range matches {
			if m.rule.Priority != tier {
				break
			}
			e.applyActions(report, m.idx, m.rule)
		}
	}

	report.Incomplete = timedOut
	report.Duration = time.Since(start)
	e.record(report)
	return report, nil
}

// evalCondition tests one rule's condition, converting any evaluation
// failure into a recorded non-match.
func (e *Engine) evalCondition(ctx context.Context, evaluator Evaluator, rule *Rule, data map[string]any, wantDiagnostics bool) RuleResult {
	start := time.Now()
	res := RuleResult{RuleID: rule.ID}

	value, diagnostics, err := evaluator.Evaluate(ctx, data, rule.Condition, rule.program, wantDiagnostics)
	res.Duration = time.Since(start)
	res.Diagnostics = diagnostics

	switch {
	case err != nil:
		res.Err = &EvaluationError{RuleID: rule.ID, Expr: rule.Condition, Err: err}
	default:
		b, ok := value.Val.(bool)
		if !ok {
			res.Err = &EvaluationError{
				RuleID: rule.ID,
				Expr:   rule.Condition,
				Err:    fmt.Errorf("condition produced %T, expected bool", value.Val),
			}
		} else {
			res.Matched = b
		}
	}
	return res
}

// applyActions applies the rule's actions to the report's output.
// Action kinds are validated at registration, so failures here indicate
// a corrupted rule; they are recorded on the rule's result rather than
// aborting the pass.
func (e *Engine) applyActions(report *Report, idx int, rule *Rule) {
	for _, a := range rule.Actions {
		if err := report.Output.apply(a); err != nil {
			report.Results[idx].Err = &EvaluationError{RuleID: rule.ID, Expr: rule.Condition, Err: err}
			return
		}
	}
	report.Results[idx].Applied = true
}

// record sends the report to the collector. Metrics must never fail the
// evaluation path, so any panic from recording is logged and swallowed.
func (e *Engine) record(report *Report) {
	if e.metrics == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("metrics recording failed", slog.String("domain", report.Domain), slog.Any("panic", p))
		}
	}()
	e.metrics.Record(report)
}
