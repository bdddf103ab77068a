package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/surveylens/internal/survey"
)

func day(d int) *time.Time {
	t := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func sample() []survey.ClassifiedRecord {
	return []survey.ClassifiedRecord{
		{
			Record:         survey.Record{RowID: 2, Values: map[string]string{"region": "EU"}},
			Date:           day(1),
			Classification: &survey.Classification{Sentiment: survey.SentimentPositive, Intent: survey.IntentPraise},
		},
		{
			Record:         survey.Record{RowID: 3, Values: map[string]string{"region": "US"}},
			Date:           day(5),
			Classification: &survey.Classification{Sentiment: survey.SentimentNegative, Intent: survey.IntentComplaint},
		},
		{
			Record: survey.Record{RowID: 4, Values: map[string]string{"region": "EU"}},
			Error:  "boom",
		},
		{
			Record:         survey.Record{RowID: 5, Values: map[string]string{"region": "EU"}},
			Date:           day(10),
			Classification: &survey.Classification{Sentiment: survey.SentimentNegative, Intent: survey.IntentQuestion},
		},
	}
}

func rowIDs(rs []survey.ClassifiedRecord) []int {
	ids := make([]int, len(rs))
	for i, r := range rs {
		ids[i] = r.RowID
	}
	return ids
}

func TestApplyIdentityWhenInactive(t *testing.T) {
	recs := sample()
	out := Apply(recs, Set{"region": All, "intent": ""}, DateRange{})
	require.Len(t, out, len(recs))
	assert.Same(t, &recs[0], &out[0], "same backing array")

	assert.Same(t, &recs[0], &Apply(recs, nil, DateRange{})[0])
}

func TestApplyDimensions(t *testing.T) {
	recs := sample()

	assert.Equal(t, []int{2, 4, 5}, rowIDs(Apply(recs, Set{"region": "EU"}, DateRange{})))
	assert.Equal(t, []int{3, 5}, rowIDs(Apply(recs, Set{"sentiment": "negative"}, DateRange{})))
	assert.Equal(t, []int{5}, rowIDs(Apply(recs, Set{"sentiment": "negative", "region": "EU"}, DateRange{})))
	assert.Empty(t, Apply(recs, Set{"missing": "x"}, DateRange{}))
}

func TestApplyDateRangeInclusive(t *testing.T) {
	recs := sample()

	assert.Equal(t, []int{3, 5}, rowIDs(Apply(recs, nil, DateRange{From: day(5)})))
	assert.Equal(t, []int{2, 3}, rowIDs(Apply(recs, nil, DateRange{To: day(5)})))
	assert.Equal(t, []int{3}, rowIDs(Apply(recs, nil, DateRange{From: day(5), To: day(5)})))
}

func TestApplyIsIdempotent(t *testing.T) {
	recs := sample()
	set := Set{"region": "EU"}
	dr := DateRange{From: day(1)}

	once := Apply(recs, set, dr)
	twice := Apply(once, set, dr)
	assert.Equal(t, once, twice)
}

func TestValues(t *testing.T) {
	recs := sample()
	assert.Equal(t, []string{"EU", "US"}, Values(recs, "region"))
	assert.Equal(t, []string{"complaint", "praise", "question"}, Values(recs, "intent"))
	assert.Empty(t, Values(recs, "nothing"))
}

func TestParseSet(t *testing.T) {
	set, err := ParseSet([]string{"region=EU", " sentiment = negative ", "region=US"})
	require.NoError(t, err)
	assert.Equal(t, Set{"region": "US", "sentiment": "negative"}, set)
	assert.Equal(t, []string{"region", "sentiment"}, set.Dimensions())

	_, err = ParseSet([]string{"oops"})
	assert.Error(t, err)
	_, err = ParseSet([]string{"=x"})
	assert.Error(t, err)
}
