package verdict

import (
	"fmt"
	"sort"
	"strings"

	box "github.com/Delta456/box-cli-maker/v2"
	"github.com/alexeyco/simpletable"
)

// Diagnostics captures the evaluation state of one condition: the
// expression, the value it produced and a snapshot of the input fields
// it had available. Collected only when the registry is built with
// CollectDiagnostics and the pass requests ReturnDiagnostics — both are
// off by default because the snapshot has a cost. Grant-decision audits
// use this to explain why a rule did or did not match.
type Diagnostics struct {
	Expr      string         `json:"expr"`
	Value     Value          `json:"value"`
	InputData map[string]any `json:"input_data,omitempty"`
}

// AsString renders a human-readable diagnostic report for the rule.
func (d *Diagnostics) AsString(r *Rule) string {
	b := box.New(box.Config{Px: 2, Py: 1, Type: "Double", Color: "Cyan", TitlePos: "Top", ContentAlign: "Left"})

	s := strings.Builder{}
	if r != nil {
		s.WriteString("Rule:\n")
		s.WriteString("-----\n")
		s.WriteString(r.Domain + "/" + r.ID)
		s.WriteString("\n\n")
	}
	s.WriteString("Expression:\n")
	s.WriteString("-----------\n")
	s.WriteString(wordWrap(d.Expr, 100))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("Result: %v (%v)\n", d.Value.Val, d.Value.Type))

	if d.InputData != nil {
		s.WriteString("\nInput Data:\n")
		s.WriteString("-----------\n")
		s.WriteString(dataTable(d.InputData).String())
	}
	return b.String("VERDICT EVALUATION DIAGNOSTICS", s.String())
}

func dataTable(data map[string]any) *simpletable.Table {
	t := simpletable.New()
	t.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "Field"},
			{Align: simpletable.AlignCenter, Text: "Value"},
		},
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		t.Body.Cells = append(t.Body.Cells, []*simpletable.Cell{
			{Text: k},
			{Text: fmt.Sprintf("%v", data[k])},
		})
	}

	t.SetStyle(simpletable.StyleUnicode)
	return t
}

func wordWrap(text string, lineWidth int) string {
	words := strings.Fields(strings.TrimSpace(text))
	if len(words) == 0 {
		return text
	}
	wrapped := words[0]
	spaceLeft := lineWidth - len(wrapped)
	for _, word := range words[1:] {
		if len(word)+1 > spaceLeft {
			wrapped += "\n" + word
			spaceLeft = lineWidth - len(word)
		} else {
			wrapped += " " + word
			spaceLeft -= 1 + len(word)
		}
	}
	return wrapped
}
