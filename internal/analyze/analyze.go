// Package analyze classifies a single survey response with an LLM.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/TobiSchelling/surveylens/internal/llm"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

var (
	// ErrNotConfigured means no usable LLM client could be created. It is
	// fatal for a batch, unlike per-response failures.
	ErrNotConfigured = errors.New("no LLM provider configured")
	// ErrEmptyText is returned for blank responses.
	ErrEmptyText = errors.New("response text is empty")
	// ErrUnparseable is returned when the model output is not a classification.
	ErrUnparseable = errors.New("could not parse classification from model output")
)

const maxTextChars = 4000

// Analyzer produces a classification for one response text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*survey.Classification, error)
}

// LLMAnalyzer classifies responses with an llm.Provider.
type LLMAnalyzer struct {
	provider  llm.Provider
	maxTokens int
}

// New returns an analyzer backed by provider.
func New(provider llm.Provider, maxTokens int) (*LLMAnalyzer, error) {
	if provider == nil || !provider.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &LLMAnalyzer{provider: provider, maxTokens: maxTokens}, nil
}

// verdict is the wire shape requested from the model.
type verdict struct {
	Sentiment       string   `json:"sentiment" jsonschema:"enum=positive,enum=neutral,enum=negative"`
	SentimentScore  float64  `json:"sentiment_score" jsonschema:"minimum=-1,maximum=1"`
	Intent          string   `json:"intent" jsonschema:"enum=complaint,enum=praise,enum=suggestion,enum=question,enum=request,enum=other"`
	Emotions        []string `json:"emotions"`
	Topics          []string `json:"topics" jsonschema:"minItems=1,maxItems=2"`
	Explanation     string   `json:"explanation"`
	Confidence      float64  `json:"confidence" jsonschema:"minimum=0,maximum=100"`
	RedactedExcerpt string   `json:"redacted_excerpt"`
}

var verdictSchema = llm.GenerateSchema[verdict]("SurveyClassification", "Classification of one survey response")

// Analyze classifies text.
func (a *LLMAnalyzer) Analyze(ctx context.Context, text string) (*survey.Classification, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	text = truncate(text, maxTextChars)

	prompt := buildPrompt(text)

	var (
		raw string
		err error
	)
	if sp, ok := a.provider.(llm.StructuredProvider); ok {
		raw, err = sp.GenerateStructured(ctx, prompt, verdictSchema, a.maxTokens)
	} else {
		raw, err = a.provider.Generate(ctx, prompt, a.maxTokens)
	}
	if err != nil {
		return nil, err
	}

	var v verdict
	if err := llm.DecodeJSON(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return normalize(v), nil
}

// truncate cuts text to at most n bytes without splitting a UTF-8 sequence
// and marks the cut with "...".
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n] + "..."
}

func normalize(v verdict) *survey.Classification {
	c := &survey.Classification{
		SentimentScore:  clamp(v.SentimentScore, -1, 1),
		Explanation:     strings.TrimSpace(v.Explanation),
		RedactedExcerpt: strings.TrimSpace(v.RedactedExcerpt),
	}

	c.Sentiment = survey.Sentiment(strings.ToLower(strings.TrimSpace(v.Sentiment)))
	if !slices.Contains(survey.Sentiments, c.Sentiment) {
		c.Sentiment = sentimentFromScore(c.SentimentScore)
	}

	c.Intent = survey.Intent(strings.ToLower(strings.TrimSpace(v.Intent)))
	if !slices.Contains(survey.Intents, c.Intent) {
		c.Intent = survey.IntentOther
	}

	for _, e := range v.Emotions {
		e = strings.ToLower(strings.TrimSpace(e))
		if slices.Contains(survey.Emotions, e) && !slices.Contains(c.Emotions, e) {
			c.Emotions = append(c.Emotions, e)
		}
	}

	for _, t := range v.Topics {
		if t = strings.TrimSpace(t); t != "" {
			c.Topics = append(c.Topics, t)
		}
		if len(c.Topics) == 2 {
			break
		}
	}

	conf := v.Confidence
	if conf > 0 && conf < 1 {
		conf *= 100
	}
	c.Confidence = int(math.Round(clamp(conf, 0, 100)))
	return c
}

func sentimentFromScore(score float64) survey.Sentiment {
	switch {
	case score > 0.2:
		return survey.SentimentPositive
	case score < -0.2:
		return survey.SentimentNegative
	default:
		return survey.SentimentNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
