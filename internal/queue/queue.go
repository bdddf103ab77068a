// Package queue drives survey responses through an Analyzer one at a time.
//
// A Queue processes records strictly in input order with at most one
// classification in flight, paced by a ratelimit.Limiter. Results are
// appended as each record finishes; other goroutines may read the state and
// progress at any time while a run is in progress.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/TobiSchelling/surveylens/internal/analyze"
	"github.com/TobiSchelling/surveylens/internal/dates"
	"github.com/TobiSchelling/surveylens/internal/ratelimit"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

var (
	// ErrAlreadyRunning is returned when Run is called on a busy queue.
	ErrAlreadyRunning = errors.New("classification queue is already running")
	// ErrNoTextField is returned when Options.TextField is empty.
	ErrNoTextField = errors.New("no text field designated")
)

// State is the lifecycle of one batch.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Options selects the columns used for a run.
type Options struct {
	TextField string
	// DateField is optional. When set each record gets a parsed date.
	DateField string
	DateOrder dates.Order
}

// Progress is emitted after every record.
type Progress struct {
	Processed int
	Total     int
	Percent   int
	Record    survey.ClassifiedRecord
	// AmbiguousDate is set when the record's date could be read as both
	// month/day and day/month.
	AmbiguousDate bool
}

// Queue is a sequential, rate-limited classification queue.
type Queue struct {
	analyzer analyze.Analyzer
	limiter  ratelimit.Limiter

	// OnProgress, if set, is called from the Run goroutine after each record.
	OnProgress func(Progress)

	mu        sync.RWMutex
	state     State
	results   []survey.ClassifiedRecord
	processed int
	total     int
}

// New creates a queue. A nil limiter disables pacing.
func New(analyzer analyze.Analyzer, limiter ratelimit.Limiter) *Queue {
	if limiter == nil {
		limiter = ratelimit.New(0, nil)
	}
	return &Queue{analyzer: analyzer, limiter: limiter, state: StateIdle}
}

// Run classifies records in order and returns the classified sequence. The
// result always has one entry per processed record in input order. If ctx
// is cancelled between records, Run stops, the queue ends in StateCancelled
// and the partial result is returned together with ctx.Err().
func (q *Queue) Run(ctx context.Context, records []survey.Record, opts Options) ([]survey.ClassifiedRecord, error) {
	if q.analyzer == nil {
		return nil, analyze.ErrNotConfigured
	}
	if opts.TextField == "" {
		return nil, ErrNoTextField
	}

	q.mu.Lock()
	if q.state == StateRunning {
		q.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	q.state = StateRunning
	q.results = make([]survey.ClassifiedRecord, 0, len(records))
	q.processed = 0
	q.total = len(records)
	q.mu.Unlock()

	for i := range records {
		if err := q.limiter.Wait(ctx); err != nil {
			return q.finish(StateCancelled), err
		}

		cr, ambiguous, err := q.classify(ctx, records[i], opts)
		if err != nil {
			return q.finish(StateCancelled), err
		}

		q.mu.Lock()
		q.results = append(q.results, cr)
		q.processed++
		p := Progress{
			Processed:     q.processed,
			Total:         q.total,
			Percent:       percent(q.processed, q.total),
			Record:        cr,
			AmbiguousDate: ambiguous,
		}
		q.mu.Unlock()

		if q.OnProgress != nil {
			q.OnProgress(p)
		}
	}

	return q.finish(StateCompleted), nil
}

// classify handles one record. It only returns an error when ctx ended
// during the call; analyzer failures are recorded on the result.
func (q *Queue) classify(ctx context.Context, rec survey.Record, opts Options) (survey.ClassifiedRecord, bool, error) {
	cr := survey.ClassifiedRecord{Record: rec}

	text, _ := rec.Value(opts.TextField)
	c, err := q.analyzer.Analyze(ctx, text)
	switch {
	case err == nil:
		cr.Classification = c
	case ctx.Err() != nil:
		return cr, false, ctx.Err()
	default:
		cr.Error = DescribeError(err)
		slog.Warn("classification failed", slog.Int("row_id", rec.RowID), slog.String("error", err.Error()))
	}

	var ambiguous bool
	if opts.DateField != "" {
		if raw, ok := rec.Value(opts.DateField); ok {
			r := dates.Parse(raw, opts.DateOrder)
			if r.OK {
				t := r.Time
				cr.Date = &t
			}
			ambiguous = r.Ambiguous
		}
	}
	return cr, ambiguous, nil
}

func (q *Queue) finish(state State) []survey.ClassifiedRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = state
	return append([]survey.ClassifiedRecord(nil), q.results...)
}

// percent rounds to the nearest integer but never reports 100 before the
// last record is done.
func percent(processed, total int) int {
	if total == 0 || processed >= total {
		return 100
	}
	p := int(math.Round(float64(processed) / float64(total) * 100))
	if p >= 100 {
		p = 99
	}
	return p
}

// State returns the current batch state.
func (q *Queue) State() State {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state
}

// Progress returns the current completion percentage.
func (q *Queue) Progress() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.state == StateIdle {
		return 0
	}
	return percent(q.processed, q.total)
}

// String formats a progress line for logs.
func (p Progress) String() string {
	return fmt.Sprintf("%d/%d (%d%%)", p.Processed, p.Total, p.Percent)
}
