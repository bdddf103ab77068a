package pipeline

import (
	"context"
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/surveylens/internal/analyze"
	"github.com/TobiSchelling/surveylens/internal/config"
	"github.com/TobiSchelling/surveylens/internal/csvcodec"
	"github.com/TobiSchelling/surveylens/internal/database"
	"github.com/TobiSchelling/surveylens/internal/queue"
	"github.com/TobiSchelling/surveylens/internal/ratelimit"
	"github.com/TobiSchelling/surveylens/internal/session"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

// mockProvider answers every prompt with a fixed classification unless the
// prompt contains a trigger word.
type mockProvider struct {
	calls int
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.calls++
	if strings.Contains(prompt, "EXPLODE") {
		return "", errors.New("OpenAI API returned 429: rate limit reached")
	}
	return `{"sentiment":"negative","sentiment_score":-0.6,"intent":"complaint","emotions":["frustration"],"topics":["Delivery","Speed"],"explanation":"Late","confidence":80,"redacted_excerpt":"late"}`, nil
}

func (m *mockProvider) IsConfigured() bool { return true }

const surveyCSV = "comment,date,region\r\n" +
	"\"Slow, very slow delivery\",2024-01-01,EU\r\n" +
	"EXPLODE,03/04/2024,US\r\n" +
	"\r\n" +
	"Fine,2024-01-03\r\n"

func setup(t *testing.T) (*config.Config, *database.DB, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "survey.csv")
	require.NoError(t, os.WriteFile(path, []byte(surveyCSV), 0o644))

	db, err := database.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		LLM:   config.LLM{MaxTokens: 256},
		Queue: config.Queue{Interval: time.Second, DateOrder: "auto"},
	}
	return cfg, db, path
}

func TestLoad(t *testing.T) {
	_, _, path := setup(t)
	up, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "survey.csv", up.FileName)
	assert.Equal(t, []string{"comment", "date", "region"}, up.Schema.Fields())
	require.Len(t, up.Records, 3)
	assert.Equal(t, 2, up.Records[0].RowID)
	assert.Len(t, up.Ragged, 1)

	_, ok := up.Records[2].Value("region")
	assert.False(t, ok, "missing trailing field is absent")
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, []byte("\n  \n"), 0o644))
	_, err = Load(empty)
	assert.ErrorIs(t, err, csvcodec.ErrEmptyInput)
}

func TestRunStoresResults(t *testing.T) {
	cfg, db, path := setup(t)
	provider := &mockProvider{}
	clock := ratelimit.NewManualClock(time.Unix(0, 0))
	p := NewWith(cfg, db, provider, ratelimit.New(cfg.Queue.Interval, clock))

	var phases []session.Phase
	var progress []int
	p.OnState = func(st session.State) {
		phases = append(phases, st.Phase)
		progress = append(progress, st.Progress)
	}

	r, err := p.Run(context.Background(), Input{Path: path, TextField: "comment", DateField: "date"})
	require.NoError(t, err)

	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 2, r.Classified)
	assert.Equal(t, 1, r.Errored)
	assert.Equal(t, 1, r.AmbiguousDates)
	assert.False(t, r.Cancelled)
	assert.Equal(t, []session.Phase{
		session.PhaseLoaded, session.PhaseAnalyzing,
		session.PhaseAnalyzing, session.PhaseAnalyzing, session.PhaseAnalyzing,
		session.PhaseDone,
	}, phases)
	assert.Equal(t, []int{0, 0, 33, 67, 100, 100}, progress)

	assert.Equal(t, session.PhaseDone, r.Session.Phase)
	assert.Equal(t, r.RunID, r.Session.RunID)
	assert.Equal(t, []string{"row 4 has 2 fields, expected 3"}, r.Session.Warnings)
	assert.Equal(t, 2, session.Derive(r.Session).Summary.Classified)
	assert.Equal(t, 3, provider.calls)
	assert.Len(t, clock.Sleeps, 2)

	run, err := db.GetRun(r.RunID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCompleted, run.Status)
	assert.Equal(t, 3, run.Processed)
	assert.Equal(t, 1, run.AmbiguousDates)

	stored, err := db.GetResponses(r.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, []string{"Delivery", "Speed"}, stored[0].Classification.Topics)
	assert.Equal(t, "Rate limited by the classification service; slowing down automatically", stored[1].Error)
	require.NotNil(t, stored[1].Date)
	assert.Equal(t, time.March, stored[1].Date.Month(), "auto order reads month first")
	assert.Equal(t, survey.SentimentNegative, stored[2].Classification.Sentiment)
}

func TestRunFatalWithoutProvider(t *testing.T) {
	cfg, db, path := setup(t)
	p := NewWith(cfg, db, nil, nil)

	r, err := p.Run(context.Background(), Input{Path: path, TextField: "comment"})
	assert.ErrorIs(t, err, analyze.ErrNotConfigured)
	assert.Equal(t, session.PhaseFailed, r.Session.Phase)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Runs, "no run is created")
}

func TestRunRejectsUnknownColumns(t *testing.T) {
	cfg, db, path := setup(t)
	p := NewWith(cfg, db, &mockProvider{}, nil)

	r, err := p.Run(context.Background(), Input{Path: path, TextField: "feedback"})
	assert.ErrorIs(t, err, survey.ErrUnknownField)
	assert.Equal(t, session.PhaseFailed, r.Session.Phase)
	assert.Equal(t, "survey.csv", r.Session.FileName, "the file was read before the column check")

	_, err = p.Run(context.Background(), Input{Path: path})
	assert.ErrorIs(t, err, queue.ErrNoTextField)

	_, err = p.Run(context.Background(), Input{Path: path, TextField: "comment", DateOrder: "ymd"})
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	cfg, db, path := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewWith(cfg, db, &mockProvider{}, nil)
	p.OnState = func(st session.State) {
		if len(st.Records) == 1 {
			cancel()
		}
	}

	r, err := p.Run(ctx, Input{Path: path, TextField: "comment"})
	require.NoError(t, err)
	assert.True(t, r.Cancelled)
	assert.Equal(t, session.PhaseCancelled, r.Session.Phase)
	assert.Equal(t, 33, r.Session.Progress)

	run, _ := db.GetRun(r.RunID)
	assert.Equal(t, database.StatusCancelled, run.Status)
	stored, _ := db.GetResponses(r.RunID)
	assert.Len(t, stored, 1)
}

func TestDryRun(t *testing.T) {
	cfg, db, path := setup(t)
	provider := &mockProvider{}
	p := NewWith(cfg, db, provider, nil)

	r, err := p.DryRun(Input{Path: path, TextField: "comment", DateField: "date", DateOrder: "dmy"})
	require.NoError(t, err)
	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, 3, r.Total)
	assert.Equal(t, 0, r.AmbiguousDates, "explicit order is never ambiguous")

	var names []string
	for _, s := range r.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Load", "Classify", "Dates", "Pacing"}, names)
	assert.Contains(t, r.Steps[0].Summary, "1 ragged rows")
	assert.Contains(t, r.Steps[2].Summary, "3 dates parsed")
	assert.Equal(t, session.PhaseLoaded, r.Session.Phase)
	assert.Equal(t, "date", r.Session.DateField)
}

// slowProvider holds every call long enough for the heartbeat to fire.
type slowProvider struct {
	mockProvider
	delay time.Duration
}

func (s *slowProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	time.Sleep(s.delay)
	return s.mockProvider.Generate(ctx, prompt, maxTokens)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRunLogsHeartbeat(t *testing.T) {
	cfg, db, path := setup(t)
	logs := captureLogs(t)

	p := NewWith(cfg, db, &slowProvider{delay: 30 * time.Millisecond}, nil)
	p.Heartbeat = 5 * time.Millisecond

	_, err := p.Run(context.Background(), Input{Path: path, TextField: "comment"})
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, "msg=classifying run=")
	assert.Contains(t, out, "state=running")
}

func TestRunHeartbeatDisabled(t *testing.T) {
	cfg, db, path := setup(t)
	logs := captureLogs(t)

	p := NewWith(cfg, db, &slowProvider{delay: 10 * time.Millisecond}, nil)
	p.Heartbeat = 0

	_, err := p.Run(context.Background(), Input{Path: path, TextField: "comment"})
	require.NoError(t, err)
	assert.NotContains(t, logs.String(), "msg=classifying run=")
}

func TestRunReportsFinishError(t *testing.T) {
	cfg, db, path := setup(t)

	p := NewWith(cfg, db, &mockProvider{}, nil)
	p.OnState = func(st session.State) {
		// Every response is stored by now; only closing the run is left.
		if st.Phase == session.PhaseAnalyzing && len(st.Records) == st.Total {
			db.Close()
		}
	}

	r, err := p.Run(context.Background(), Input{Path: path, TextField: "comment"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finishing run")
	assert.Equal(t, session.PhaseFailed, r.Session.Phase)
	assert.Contains(t, r.Session.Error, "finishing run")
}
