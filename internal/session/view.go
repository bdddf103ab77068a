package session

import (
	"github.com/TobiSchelling/surveylens/internal/aggregate"
	"github.com/TobiSchelling/surveylens/internal/filter"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

// View is everything derived from a State for display.
type View struct {
	Phase    Phase                        `json:"phase"`
	Progress int                          `json:"progress"`
	Matched  int                          `json:"matched"`
	Summary  aggregate.Summary            `json:"summary"`
	Counts   map[string][]aggregate.Count `json:"counts"`
	Topics   []aggregate.TreeView         `json:"topics"`
	Series   aggregate.Series             `json:"series"`
	Choices  map[string][]string          `json:"choices"`
	Records  []survey.ClassifiedRecord    `json:"-"`
}

// ChartFields are the classification dimensions counted in every view.
var ChartFields = []string{survey.FieldSentiment, survey.FieldIntent, survey.FieldTopics, survey.FieldEmotions}

// Derive filters the session's records and computes all aggregates.
func Derive(s State) View {
	filtered := filter.Apply(s.Records, s.Filters, filter.DateRange{From: s.From, To: s.To})

	v := View{
		Phase:    s.Phase,
		Progress: s.Progress,
		Matched:  len(filtered),
		Summary:  aggregate.Summarize(filtered),
		Counts:   make(map[string][]aggregate.Count, len(ChartFields)),
		Series:   aggregate.TimeSeries(filtered, s.Period, s.GroupBy),
		Choices:  make(map[string][]string),
		Records:  filtered,
	}
	for _, f := range ChartFields {
		v.Counts[f] = aggregate.CountBy(filtered, f, s.TopN)
	}

	tree := aggregate.BuildTopicTree(filtered)
	for _, p := range s.Expanded {
		if i, ok := tree.Find(p); ok {
			tree.SetExpanded(i, true)
		}
	}
	v.Topics = tree.View()

	// Choices come from the unfiltered set so a filter can always be changed.
	for _, dim := range append([]string{survey.FieldSentiment, survey.FieldIntent}, s.Headers...) {
		if dim == s.TextField {
			continue
		}
		if vals := filter.Values(s.Records, dim); len(vals) > 0 && len(vals) <= maxChoices {
			v.Choices[dim] = vals
		}
	}
	return v
}

// Dimensions with more distinct values than this are free text, not filters.
const maxChoices = 50
