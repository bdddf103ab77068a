package survey

import "time"

// Sentiment is the overall polarity of a response.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Sentiments lists the accepted sentiment values.
var Sentiments = []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}

// Intent is what the respondent is trying to do.
type Intent string

const (
	IntentComplaint  Intent = "complaint"
	IntentPraise     Intent = "praise"
	IntentSuggestion Intent = "suggestion"
	IntentQuestion   Intent = "question"
	IntentRequest    Intent = "request"
	IntentOther      Intent = "other"
)

// Intents lists the accepted intent values.
var Intents = []Intent{IntentComplaint, IntentPraise, IntentSuggestion, IntentQuestion, IntentRequest, IntentOther}

// Emotions is the fixed emotion vocabulary.
var Emotions = []string{
	"joy", "trust", "gratitude", "surprise", "anticipation",
	"frustration", "anger", "disappointment", "sadness", "fear", "confusion",
}

// Classification is the analyzer's verdict for one response.
type Classification struct {
	Sentiment       Sentiment `json:"sentiment"`
	SentimentScore  float64   `json:"sentiment_score"`
	Intent          Intent    `json:"intent"`
	Emotions        []string  `json:"emotions"`
	Topics          []string  `json:"topics"`
	Explanation     string    `json:"explanation"`
	Confidence      int       `json:"confidence"`
	RedactedExcerpt string    `json:"redacted_excerpt"`
}

// MainTopic returns the first topic, or "" when there is none.
func (c *Classification) MainTopic() string {
	if c == nil || len(c.Topics) == 0 {
		return ""
	}
	return c.Topics[0]
}

// ClassifiedRecord is a Record after it went through the classification
// queue. At most one of Classification and Error is set.
type ClassifiedRecord struct {
	Record
	Date           *time.Time      `json:"date,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Classification field names usable as dimensions.
const (
	FieldSentiment = "sentiment"
	FieldIntent    = "intent"
	FieldTopics    = "topics"
	FieldEmotions  = "emotions"
	FieldMainTopic = "main_topic"
)

// Field returns the single value of a dimension. Classification fields
// shadow CSV columns with the same name. List fields are not single-valued
// and return false; use Values for them.
func (r *ClassifiedRecord) Field(name string) (string, bool) {
	c := r.Classification
	switch name {
	case FieldSentiment:
		if c == nil || c.Sentiment == "" {
			return "", false
		}
		return string(c.Sentiment), true
	case FieldIntent:
		if c == nil || c.Intent == "" {
			return "", false
		}
		return string(c.Intent), true
	case FieldMainTopic:
		if t := c.MainTopic(); t != "" {
			return t, true
		}
		return "", false
	case FieldTopics, FieldEmotions:
		return "", false
	}
	return r.Value(name)
}

// Values returns every value the record contributes for a dimension: the
// list elements for topics and emotions, a single value otherwise.
func (r *ClassifiedRecord) Values(name string) []string {
	switch name {
	case FieldTopics:
		if r.Classification == nil {
			return nil
		}
		return r.Classification.Topics
	case FieldEmotions:
		if r.Classification == nil {
			return nil
		}
		return r.Classification.Emotions
	}
	if v, ok := r.Field(name); ok && v != "" {
		return []string{v}
	}
	return nil
}
