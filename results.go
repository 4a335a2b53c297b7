package verdict

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RuleResult is the outcome of one rule within a pass.
type RuleResult struct {
	RuleID string `json:"rule_id"`

	// Whether the condition evaluated to true.
	Matched bool `json:"matched"`

	// Whether the rule's actions were applied to the output. A matched
	// rule may still not apply, e.g. in PriorityGroup mode when a higher
	// tier won.
	Applied bool `json:"applied"`

	// The rule was never evaluated because the pass ran out of time.
	Skipped bool `json:"skipped,omitempty"`

	// Set when condition evaluation failed; the rule is then a
	// non-match. Never set together with Matched.
	Err *EvaluationError `json:"error,omitempty"`

	// Time spent evaluating the condition.
	Duration time.Duration `json:"duration"`

	// Diagnostic data; only present if requested for the pass and the
	// registry collects diagnostics.
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// Report is the outcome of one evaluation pass. It is owned exclusively
// by the caller after Evaluate returns; the engine keeps no reference.
type Report struct {
	// Unique ID for this pass, for audit trails.
	PassID string `json:"pass_id"`

	Domain string `json:"domain"`
	Mode   Mode   `json:"mode"`

	// Per-rule outcomes in execution order. Deterministic for a given
	// rule set and context.
	Results []RuleResult `json:"results"`

	// Accumulated effects of the applied rules.
	Output *Output `json:"output"`

	// Audit reference for the input context; caller-supplied or
	// generated.
	ContextRef string `json:"context_ref"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// True when the pass exceeded its time budget and later rules were
	// skipped.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Matched returns the results of rules whose conditions were true.
func (r *Report) Matched() []RuleResult {
	var out []RuleResult
	for _, res := range r.Results {
		if res.Matched {
			out = append(out, res)
		}
	}
	return out
}

// Errors returns the evaluation errors recorded during the pass.
func (r *Report) Errors() []*EvaluationError {
	var out []*EvaluationError
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Err)
		}
	}
	return out
}

// Result returns the result for the rule ID, if the rule was part of
// the pass.
func (r *Report) Result(ruleID string) (RuleResult, bool) {
	for _, res := range r.Results {
		if res.RuleID == ruleID {
			return res, true
		}
	}
	return RuleResult{}, false
}

// String produces a table of the rules executed and their outcomes.
func (r *Report) String() string {
	tw := table.NewWriter()
	tw.SetTitle("\nVERDICT PASS %s\ndomain=%s mode=%s\n", r.PassID, r.Domain, r.Mode)
	tw.AppendHeader(table.Row{"\nRule", "\nMatched", "\nApplied", "\nSkipped", "\nError", "\nDuration"})

	for _, res := range r.Results {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Err.Error()
		}
		tw.AppendRow(table.Row{
			res.RuleID,
			yesNo(res.Matched),
			yesNo(res.Applied),
			yesNo(res.Skipped),
			errText,
			res.Duration.Round(time.Microsecond),
		})
	}

	tw.AppendFooter(table.Row{"", "", "", "", "total", r.Duration.Round(time.Microsecond)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, WidthMax: 40},
	})
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)

	s := tw.Render()
	if r.Incomplete {
		s += "\n(pass incomplete: time budget exceeded)"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
