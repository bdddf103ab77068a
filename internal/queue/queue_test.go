package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/surveylens/internal/analyze"
	"github.com/TobiSchelling/surveylens/internal/dates"
	"github.com/TobiSchelling/surveylens/internal/ratelimit"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

// fakeAnalyzer classifies by looking the text up in a table.
type fakeAnalyzer struct {
	mu       sync.Mutex
	errs     map[string]error
	calls    []string
	inFlight int
	maxSeen  int
	hook     func(text string)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) (*survey.Classification, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	err := f.errs[text]
	f.mu.Unlock()

	if f.hook != nil {
		f.hook(text)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &survey.Classification{Sentiment: survey.SentimentNeutral, Topics: []string{text}}, nil
}

func makeRecords(texts ...string) []survey.Record {
	recs := make([]survey.Record, len(texts))
	for i, t := range texts {
		recs[i] = survey.Record{
			RowID:  survey.FirstRowID + i,
			Values: map[string]string{"text": t, "date": fmt.Sprintf("2024-01-%02d", i+1)},
		}
	}
	return recs
}

func newTestQueue(a analyze.Analyzer) (*Queue, *ratelimit.ManualClock) {
	clock := ratelimit.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(a, ratelimit.New(ratelimit.DefaultInterval, clock)), clock
}

func TestRunPreservesOrderAndLength(t *testing.T) {
	a := &fakeAnalyzer{errs: map[string]error{"b": errors.New("boom")}}
	q, _ := newTestQueue(a)

	recs := makeRecords("a", "b", "c", "d")
	out, err := q.Run(context.Background(), recs, Options{TextField: "text"})
	require.NoError(t, err)
	require.Len(t, out, len(recs))

	for i := range recs {
		assert.Equal(t, recs[i].RowID, out[i].RowID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, a.calls)
	assert.Equal(t, 1, a.maxSeen, "never more than one call in flight")
	assert.Equal(t, StateCompleted, q.State())
	assert.Equal(t, 100, q.Progress())
}

func TestRunRecordsPerItemErrors(t *testing.T) {
	a := &fakeAnalyzer{errs: map[string]error{
		"b": errors.New("OpenAI API returned 429 Too Many Requests"),
		"c": errors.New(`model "llama9" not found`),
		"d": errors.New("connection refused"),
	}}
	q, _ := newTestQueue(a)

	out, err := q.Run(context.Background(), makeRecords("a", "b", "c", "d"), Options{TextField: "text"})
	require.NoError(t, err)

	assert.NotNil(t, out[0].Classification)
	assert.Empty(t, out[0].Error)
	for _, cr := range out[1:] {
		assert.Nil(t, cr.Classification)
		assert.NotEmpty(t, cr.Error)
	}
	assert.Equal(t, msgRateLimited, out[1].Error)
	assert.Equal(t, msgModelNotFound, out[2].Error)
	assert.Equal(t, "connection refused", out[3].Error)
}

func TestProgressIsMonotonic(t *testing.T) {
	q, _ := newTestQueue(&fakeAnalyzer{})

	var seen []int
	q.OnProgress = func(p Progress) { seen = append(seen, p.Percent) }

	texts := make([]string, 7)
	for i := range texts {
		texts[i] = fmt.Sprint(i)
	}
	_, err := q.Run(context.Background(), makeRecords(texts...), Options{TextField: "text"})
	require.NoError(t, err)

	require.Len(t, seen, 7)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	for _, p := range seen[:len(seen)-1] {
		assert.Less(t, p, 100)
	}
	assert.Equal(t, 100, seen[len(seen)-1])
}

func TestPercentNeverReachesHundredEarly(t *testing.T) {
	assert.Equal(t, 99, percent(399, 400))
	assert.Equal(t, 100, percent(400, 400))
	assert.Equal(t, 50, percent(1, 2))
	assert.Equal(t, 100, percent(0, 0))
}

func TestRunPacesCalls(t *testing.T) {
	q, clock := newTestQueue(&fakeAnalyzer{})

	_, err := q.Run(context.Background(), makeRecords("a", "b", "c"), Options{TextField: "text"})
	require.NoError(t, err)

	require.Len(t, clock.Sleeps, 2, "first call is immediate")
	assert.InDelta(t, float64(2*ratelimit.DefaultInterval), float64(clock.Total()), float64(time.Millisecond))
}

func TestRunAttachesDates(t *testing.T) {
	q, _ := newTestQueue(&fakeAnalyzer{})
	recs := makeRecords("a", "b")
	recs[1].Values["date"] = "not a date"

	var ambiguous []bool
	q.OnProgress = func(p Progress) { ambiguous = append(ambiguous, p.AmbiguousDate) }

	out, err := q.Run(context.Background(), recs, Options{TextField: "text", DateField: "date", DateOrder: dates.OrderAuto})
	require.NoError(t, err)

	require.NotNil(t, out[0].Date)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *out[0].Date)
	assert.Nil(t, out[1].Date)
	assert.Equal(t, []bool{false, false}, ambiguous)
}

func TestRunCancelledBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := &fakeAnalyzer{}
	a.hook = func(text string) {
		if text == "b" {
			cancel()
		}
	}
	q, _ := newTestQueue(a)

	out, err := q.Run(ctx, makeRecords("a", "b", "c"), Options{TextField: "text"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, out, 1, "the interrupted record stays pending")
	assert.Equal(t, StateCancelled, q.State())
	assert.Equal(t, []string{"a", "b"}, a.calls)
}

func TestRunEmptyCompletes(t *testing.T) {
	q, _ := newTestQueue(&fakeAnalyzer{})
	assert.Equal(t, 0, q.Progress())

	out, err := q.Run(context.Background(), nil, Options{TextField: "text"})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, StateCompleted, q.State())
	assert.Equal(t, 100, q.Progress())
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	a := &fakeAnalyzer{hook: func(string) {
		close(started)
		<-release
	}}
	q, _ := newTestQueue(a)

	done := make(chan error, 1)
	go func() {
		_, err := q.Run(context.Background(), makeRecords("a"), Options{TextField: "text"})
		done <- err
	}()

	<-started
	_, err := q.Run(context.Background(), makeRecords("x"), Options{TextField: "text"})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, StateRunning, q.State())
	assert.Equal(t, 0, q.Progress(), "first record still in flight")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateCompleted, q.State())
	assert.Equal(t, 100, q.Progress())
}

func TestRunRequiresAnalyzerAndTextField(t *testing.T) {
	_, err := New(nil, nil).Run(context.Background(), makeRecords("a"), Options{TextField: "text"})
	assert.ErrorIs(t, err, analyze.ErrNotConfigured)

	_, err = New(&fakeAnalyzer{}, nil).Run(context.Background(), makeRecords("a"), Options{})
	assert.ErrorIs(t, err, ErrNoTextField)
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  string
		want string
	}{
		{"status 429", msgRateLimited},
		{"Rate limit exceeded", msgRateLimited},
		{"You exceeded your current quota", msgRateLimited},
		{"Ollama returned 404: model 'x' not found", msgModelNotFound},
		{"404 page not found", "404 page not found"},
		{"dial tcp: timeout", "dial tcp: timeout"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DescribeError(errors.New(tt.err)), tt.err)
	}
	assert.Empty(t, DescribeError(nil))
}
