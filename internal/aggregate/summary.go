package aggregate

import "github.com/TobiSchelling/surveylens/internal/survey"

// Summary holds headline numbers for a record set.
type Summary struct {
	Total         int                      `json:"total"`
	Classified    int                      `json:"classified"`
	Errored       int                      `json:"errored"`
	AvgSentiment  float64                  `json:"avg_sentiment"`
	AvgConfidence float64                  `json:"avg_confidence"`
	Sentiments    map[survey.Sentiment]int `json:"sentiments"`
}

// Summarize computes a Summary. Averages are over classified records only.
func Summarize(records []survey.ClassifiedRecord) Summary {
	s := Summary{Total: len(records), Sentiments: make(map[survey.Sentiment]int)}
	var score, conf float64
	for i := range records {
		r := &records[i]
		switch {
		case r.Classification != nil:
			s.Classified++
			score += r.Classification.SentimentScore
			conf += float64(r.Classification.Confidence)
			if r.Classification.Sentiment != "" {
				s.Sentiments[r.Classification.Sentiment]++
			}
		case r.Error != "":
			s.Errored++
		}
	}
	if s.Classified > 0 {
		s.AvgSentiment = score / float64(s.Classified)
		s.AvgConfidence = conf / float64(s.Classified)
	}
	return s
}
