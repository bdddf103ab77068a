// Package summarize writes markdown summaries, recommendations and answers
// over a set of classified survey responses.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TobiSchelling/surveylens/internal/aggregate"
	"github.com/TobiSchelling/surveylens/internal/llm"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

// Kind selects what to generate.
type Kind string

const (
	KindSummary         Kind = "summary"
	KindRecommendations Kind = "recommendations"
	KindAnswer          Kind = "answer"
)

var (
	// ErrNoQuestion is returned for KindAnswer without a question.
	ErrNoQuestion = errors.New("a question is required")
	// ErrUnknownKind is returned for unsupported kinds.
	ErrUnknownKind = errors.New("unknown summary kind")
)

const (
	maxExcerpts = 40
	topTopics   = 8
)

const summaryPrompt = `You are summarizing customer survey feedback for a product team.

%s

%s

Write a concise markdown summary with these sections:
## Overview
Two or three sentences on overall sentiment and volume.
## Main themes
Bullets for the most important topics, with what customers say about them.
## Notable quotes
Up to three short quotes taken from the excerpts above.

Only use the data above. Do not invent numbers.`

const recommendationsPrompt = `You are advising a product team based on customer survey feedback.

%s

%s

Write 3-6 prioritized, actionable recommendations as a markdown numbered list.
Each item starts with a bold title, then one or two sentences that cite the
topics and sentiment that justify it. Focus on the most negative and most
frequent themes first.`

const answerPrompt = `You answer questions about customer survey feedback.

%s

%s

Question: %s

Answer in markdown, in a few sentences, using only the data above. If the data
does not answer the question, say so.`

// Generator produces markdown text. A nil provider yields deterministic
// summaries built from the aggregates alone.
type Generator struct {
	provider  llm.Provider
	maxTokens int
}

// New creates a generator.
func New(provider llm.Provider, maxTokens int) *Generator {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Generator{provider: provider, maxTokens: maxTokens}
}

// ParseKind validates a kind name; empty means KindSummary.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindSummary, nil
	case KindSummary, KindRecommendations, KindAnswer:
		return k, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownKind, s)
	}
}

// Generate writes markdown of the given kind. description is the question
// for KindAnswer and an optional focus note otherwise.
func (g *Generator) Generate(ctx context.Context, kind Kind, records []survey.ClassifiedRecord, description string) (string, error) {
	stats := describeStats(records)
	excerpts := describeExcerpts(records)

	var prompt string
	switch kind {
	case KindSummary:
		prompt = fmt.Sprintf(summaryPrompt, stats, excerpts)
	case KindRecommendations:
		prompt = fmt.Sprintf(recommendationsPrompt, stats, excerpts)
	case KindAnswer:
		if strings.TrimSpace(description) == "" {
			return "", ErrNoQuestion
		}
		prompt = fmt.Sprintf(answerPrompt, stats, excerpts, description)
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	if kind != KindAnswer && description != "" {
		prompt += "\n\nFocus: " + description
	}

	if g.provider == nil {
		return fallback(kind, records)
	}

	text, err := g.provider.Generate(ctx, prompt, g.maxTokens)
	if err == nil {
		text = strings.TrimSpace(text)
	}
	if err != nil || text == "" {
		if kind == KindAnswer {
			if err == nil {
				err = errors.New("empty response")
			}
			return "", fmt.Errorf("generating answer: %w", err)
		}
		slog.Warn("summary generation failed, using fallback", slog.String("kind", string(kind)), slog.Any("error", err))
		return fallback(kind, records)
	}
	return text, nil
}

func describeStats(records []survey.ClassifiedRecord) string {
	s := aggregate.Summarize(records)
	var b strings.Builder
	fmt.Fprintf(&b, "Responses: %d (%d classified, %d failed)\n", s.Total, s.Classified, s.Errored)
	fmt.Fprintf(&b, "Sentiment: %d positive, %d neutral, %d negative (average score %.2f)\n",
		s.Sentiments[survey.SentimentPositive], s.Sentiments[survey.SentimentNeutral],
		s.Sentiments[survey.SentimentNegative], s.AvgSentiment)
	b.WriteString("Top topics:\n")
	for _, c := range topCounts(records, survey.FieldMainTopic, topTopics) {
		fmt.Fprintf(&b, "  - %s: %d\n", c.Value, c.Count)
	}
	b.WriteString("Intents:")
	for _, c := range aggregate.CountBy(records, survey.FieldIntent, 0) {
		fmt.Fprintf(&b, " %s=%d", c.Value, c.Count)
	}
	return b.String()
}

// topCounts returns the n most frequent values, most frequent first.
func topCounts(records []survey.ClassifiedRecord, field string, n int) []aggregate.Count {
	counts := aggregate.CountBy(records, field, 0)
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

func describeExcerpts(records []survey.ClassifiedRecord) string {
	var lines []string
	for i := range records {
		c := records[i].Classification
		if c == nil || c.RedactedExcerpt == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%s, %s, %s] %s",
			c.Sentiment, c.Intent, strings.Join(c.Topics, " > "), c.RedactedExcerpt))
		if len(lines) == maxExcerpts {
			break
		}
	}
	if len(lines) == 0 {
		return "Excerpts: none"
	}
	return "Excerpts:\n" + strings.Join(lines, "\n")
}
