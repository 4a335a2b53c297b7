package verdict

import (
	"fmt"
	"slices"
)

// ActionKind enumerates the side effects a matched rule can apply. The
// set is closed so the engine can handle every kind exhaustively; an
// action with an unknown kind is rejected at registration.
type ActionKind int

const (
	// SetField writes Value to the named output field. A later matched
	// rule setting the same field wins; within a pass the scheduled
	// order makes the outcome deterministic.
	SetField ActionKind = iota

	// AddFlag adds a named flag to the output. Flags are unique; adding
	// an existing flag is a no-op.
	AddFlag

	// AppendRecommendation appends free text to the output's
	// recommendation list.
	AppendRecommendation

	// AddScore accumulates a numeric delta into the named output score.
	AddScore
)

func (k ActionKind) String() string {
	switch k {
	case SetField:
		return "set_field"
	case AddFlag:
		return "add_flag"
	case AppendRecommendation:
		return "append_recommendation"
	case AddScore:
		return "add_score"
	default:
		return fmt.Sprintf("actionkind(%d)", int(k))
	}
}

// ParseActionKind converts a pack-file kind name to an ActionKind.
func ParseActionKind(s string) (ActionKind, error) {
	switch s {
	case "set_field":
		return SetField, nil
	case "add_flag":
		return AddFlag, nil
	case "append_recommendation":
		return AppendRecommendation, nil
	case "add_score":
		return AddScore, nil
	default:
		return 0, fmt.Errorf("unknown action kind %q", s)
	}
}

// An Action is a tagged variant: Kind selects which payload fields are
// meaningful. Use the constructors below rather than building the struct
// directly.
type Action struct {
	Kind ActionKind `json:"kind"`

	// SetField, AddScore
	Field string `json:"field,omitempty"`

	// SetField
	Value any `json:"value,omitempty"`

	// AddFlag
	Flag string `json:"flag,omitempty"`

	// AppendRecommendation
	Text string `json:"text,omitempty"`

	// AddScore
	Score float64 `json:"score,omitempty"`
}

// Set returns an action writing value to the named output field.
func Set(field string, value any) Action {
	return Action{Kind: SetField, Field: field, Value: value}
}

// Flag returns an action adding the named flag to the output.
func Flag(name string) Action {
	return Action{Kind: AddFlag, Flag: name}
}

// Recommend returns an action appending text to the output's
// recommendations.
func Recommend(text string) Action {
	return Action{Kind: AppendRecommendation, Text: text}
}

// Score returns an action accumulating delta into the named score.
func Score(field string, delta float64) Action {
	return Action{Kind: AddScore, Field: field, Score: delta}
}

func (a Action) validate() error {
	switch a.Kind {
	case SetField:
		if a.Field == "" {
			return fmt.Errorf("set_field requires a field name")
		}
	case AddFlag:
		if a.Flag == "" {
			return fmt.Errorf("add_flag requires a flag name")
		}
	case AppendRecommendation:
		if a.Text == "" {
			return fmt.Errorf("append_recommendation requires text")
		}
	case AddScore:
		if a.Field == "" {
			return fmt.Errorf("add_score requires a field name")
		}
	default:
		return fmt.Errorf("unknown action kind %d", int(a.Kind))
	}
	return nil
}

// Output accumulates the effects of matched rules during one pass. The
// engine creates one per pass and the caller owns it after the pass
// returns. Actions write here and only here; the input context is never
// touched.
type Output struct {
	Fields          map[string]any     `json:"fields,omitempty"`
	Flags           []string           `json:"flags,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	Scores          map[string]float64 `json:"scores,omitempty"`
}

func newOutput() *Output {
	return &Output{
		Fields: map[string]any{},
		Scores: map[string]float64{},
	}
}

// HasFlag reports whether the named flag has been set.
func (o *Output) HasFlag(name string) bool {
	return slices.Contains(o.Flags, name)
}

// apply performs the action's side effect. Kinds are validated at
// registration, so the default branch is unreachable for registered
// rules; it is kept so a hand-built action cannot corrupt an output
// silently.
func (o *Output) apply(a Action) error {
	switch a.Kind {
	case SetField:
		o.Fields[a.Field] = a.Value
	case AddFlag:
		if !slices.Contains(o.Flags, a.Flag) {
			o.Flags = append(o.Flags, a.Flag)
		}
	case AppendRecommendation:
		o.Recommendations = append(o.Recommendations, a.Text)
	case AddScore:
		o.Scores[a.Field] += a.Score
	default:
		return fmt.Errorf("unknown action kind %d", int(a.Kind))
	}
	return nil
}
