package summarize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/surveylens/internal/aggregate"
	"github.com/TobiSchelling/surveylens/internal/filter"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

// ErrNoProvider is returned when a question is asked without an LLM.
var ErrNoProvider = errors.New("answering questions needs an LLM provider")

func fallback(kind Kind, records []survey.ClassifiedRecord) (string, error) {
	switch kind {
	case KindSummary:
		return fallbackSummary(records), nil
	case KindRecommendations:
		return fallbackRecommendations(records), nil
	default:
		return "", ErrNoProvider
	}
}

func fallbackSummary(records []survey.ClassifiedRecord) string {
	s := aggregate.Summarize(records)
	if s.Classified == 0 {
		return "## Overview\n\nNo classified responses."
	}

	var b strings.Builder
	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "%d responses, %d classified. Sentiment is %d positive, %d neutral and %d negative (average %.2f).\n",
		s.Total, s.Classified,
		s.Sentiments[survey.SentimentPositive], s.Sentiments[survey.SentimentNeutral],
		s.Sentiments[survey.SentimentNegative], s.AvgSentiment)

	b.WriteString("\n## Main themes\n\n")
	for _, c := range topCounts(records, survey.FieldMainTopic, topTopics) {
		fmt.Fprintf(&b, "- **%s**: %d responses\n", c.Value, c.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

func fallbackRecommendations(records []survey.ClassifiedRecord) string {
	negative := filter.Apply(records, filter.Set{survey.FieldSentiment: string(survey.SentimentNegative)}, filter.DateRange{})
	counts := topCounts(negative, survey.FieldMainTopic, 5)
	if len(counts) == 0 {
		return "No negative feedback to act on."
	}

	var lines []string
	for i, c := range counts {
		lines = append(lines, fmt.Sprintf("%d. **Review %s**: %d negative responses mention it.", i+1, c.Value, c.Count))
	}
	return strings.Join(lines, "\n")
}
