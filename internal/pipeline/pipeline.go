// Package pipeline runs an upload end to end: read, parse, classify, store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/TobiSchelling/surveylens/internal/analyze"
	"github.com/TobiSchelling/surveylens/internal/config"
	"github.com/TobiSchelling/surveylens/internal/csvcodec"
	"github.com/TobiSchelling/surveylens/internal/database"
	"github.com/TobiSchelling/surveylens/internal/dates"
	"github.com/TobiSchelling/surveylens/internal/llm"
	"github.com/TobiSchelling/surveylens/internal/queue"
	"github.com/TobiSchelling/surveylens/internal/ratelimit"
	"github.com/TobiSchelling/surveylens/internal/session"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

// DefaultHeartbeat is how often a running batch logs its progress.
const DefaultHeartbeat = 30 * time.Second

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID          string
	Steps          []StepResult
	Total          int
	Classified     int
	Errored        int
	AmbiguousDates int
	Cancelled      bool
	Duration       time.Duration
	// Session is the final state of the batch.
	Session session.State
}

// Input names the file and the columns to analyze.
type Input struct {
	Path      string
	TextField string
	DateField string
	// DateOrder overrides queue.date_order from the config when set.
	DateOrder string
}

// Upload is a parsed input file.
type Upload struct {
	FileName string
	Schema   *survey.Schema
	Records  []survey.Record
	Ragged   []csvcodec.RaggedRow
}

// Pipeline orchestrates load, classification and persistence.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	provider llm.Provider
	limiter  ratelimit.Limiter

	// OnState, if set, receives every session state the batch passes
	// through, from the loaded file to the final phase. It is called from
	// the goroutine running Run.
	OnState func(session.State)

	// Heartbeat is the interval of the "classifying" progress log line.
	// Zero or less disables it.
	Heartbeat time.Duration
}

// New creates a new pipeline with the configured provider and pacing.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	return NewWith(cfg, db, llm.CreateProvider(cfg.LLMSettings()), ratelimit.New(cfg.Queue.Interval, nil))
}

// NewWith creates a pipeline with an explicit provider and limiter.
func NewWith(cfg *config.Config, db *database.DB, provider llm.Provider, limiter ratelimit.Limiter) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, provider: provider, limiter: limiter, Heartbeat: DefaultHeartbeat}
}

func (p *Pipeline) publish(st session.State) session.State {
	if p.OnState != nil {
		p.OnState(st)
	}
	return st
}

// Load reads and parses a CSV file. Ragged rows are reported, not rejected.
func Load(path string) (*Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	table, err := csvcodec.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	schema, records, err := survey.FromTable(table)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, w := range table.Warnings {
		slog.Warn("ragged row", slog.Int("row_id", w.Index+1), slog.Int("fields", w.Fields), slog.Int("expected", w.Expected))
	}
	return &Upload{FileName: filepath.Base(path), Schema: schema, Records: records, Ragged: table.Warnings}, nil
}

// prepare loads the input and selects its columns. The returned state is
// PhaseLoaded on success; on failure it is PhaseFailed once a file was read.
func (p *Pipeline) prepare(in Input) (*Upload, queue.Options, session.State, error) {
	var opts queue.Options
	st := session.New()
	fail := func(err error) (*Upload, queue.Options, session.State, error) {
		return nil, opts, session.Failed(st, err), err
	}

	if in.TextField == "" {
		return fail(queue.ErrNoTextField)
	}
	orderName := in.DateOrder
	if orderName == "" {
		orderName = p.cfg.Queue.DateOrder
	}
	order, err := dates.ParseOrder(orderName)
	if err != nil {
		return fail(err)
	}

	up, err := Load(in.Path)
	if err != nil {
		return fail(err)
	}
	st = session.Loaded(st, up.FileName, up.Schema.Fields(), raggedWarnings(up.Ragged))
	if err := up.Schema.Require(in.TextField, in.DateField); err != nil {
		return fail(err)
	}
	if st, err = session.SelectColumns(st, in.TextField, in.DateField); err != nil {
		return fail(err)
	}
	return up, queue.Options{TextField: in.TextField, DateField: in.DateField, DateOrder: order}, st, nil
}

func raggedWarnings(rows []csvcodec.RaggedRow) []string {
	var out []string
	for _, w := range rows {
		out = append(out, fmt.Sprintf("row %d has %d fields, expected %d", w.Index+1, w.Fields, w.Expected))
	}
	return out
}

// Run classifies every response of the input file and stores the results
// as a new run. Cancelling ctx stops between responses; the partial run is
// kept and Result.Cancelled is set.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()

	up, opts, st, err := p.prepare(in)
	if err != nil {
		return &Result{Session: p.publish(st)}, err
	}
	p.publish(st)
	r := &Result{Total: len(up.Records)}
	r.Steps = append(r.Steps, loadStep(up))
	fail := func(err error) (*Result, error) {
		r.Session = p.publish(session.Failed(st, err))
		return r, err
	}

	analyzer, err := analyze.New(p.provider, p.cfg.LLM.MaxTokens)
	if err != nil {
		return fail(err)
	}

	run := &database.Run{
		SourceFile: up.FileName,
		TextField:  in.TextField,
		Headers:    up.Schema.Fields(),
		Total:      len(up.Records),
	}
	if in.DateField != "" {
		run.DateField = &in.DateField
	}
	if err := p.db.CreateRun(run); err != nil {
		return fail(err)
	}
	r.RunID = run.ID
	if st, err = session.Started(st, run.ID, run.Total); err != nil {
		return fail(err)
	}
	p.publish(st)
	slog.Info("classifying responses", slog.String("run", run.ID), slog.Int("total", run.Total))

	var storeErrors int
	q := queue.New(analyzer, p.limiter)
	q.OnProgress = func(pr queue.Progress) {
		if pr.Record.Error != "" {
			r.Errored++
		} else {
			r.Classified++
		}
		if pr.AmbiguousDate {
			r.AmbiguousDates++
			raw, _ := pr.Record.Value(in.DateField)
			slog.Warn("ambiguous date", slog.Int("row_id", pr.Record.RowID), slog.String("value", raw))
		}
		if err := p.db.InsertResponse(run.ID, pr.Processed-1, pr.Record); err != nil {
			storeErrors++
			slog.Error("storing response", slog.Int("row_id", pr.Record.RowID), slog.Any("error", err))
		}
		if err := p.db.UpdateRunProgress(run.ID, pr.Processed, r.AmbiguousDates); err != nil {
			slog.Error("updating run progress", slog.String("run", run.ID), slog.Any("error", err))
		}
		slog.Debug("classified", slog.Int("row_id", pr.Record.RowID), slog.String("progress", pr.String()))
		st = p.publish(session.Progressed(st, pr.Percent, pr.Record))
	}

	stopHeartbeat := p.heartbeat(q, run.ID)
	_, err = q.Run(ctx, up.Records, opts)
	stopHeartbeat()

	// A batch that stopped for any reason is stored as cancelled.
	status := database.StatusCompleted
	var runErr error
	if err != nil {
		status = database.StatusCancelled
		if q.State() == queue.StateCancelled {
			r.Cancelled = true
		} else {
			runErr = err
		}
	}
	if err := p.db.FinishRun(run.ID, status); err != nil {
		if runErr == nil {
			return fail(fmt.Errorf("finishing run: %w", err))
		}
		slog.Error("finishing run", slog.String("run", run.ID), slog.Any("error", err))
	}
	if runErr != nil {
		return fail(runErr)
	}
	r.Session = p.publish(session.Finished(st, r.Cancelled))

	classify := StepResult{
		Name: "Classify",
		Summary: fmt.Sprintf("Classified %d of %d responses: %d ok, %d failed",
			r.Classified+r.Errored, r.Total, r.Classified, r.Errored),
	}
	if r.Cancelled {
		classify.Summary += " (cancelled)"
	}
	r.Steps = append(r.Steps, classify)

	store := StepResult{Name: "Store", Summary: fmt.Sprintf("Saved run %s", run.ID)}
	if storeErrors > 0 {
		store.Err = fmt.Errorf("%d responses could not be stored", storeErrors)
	}
	r.Steps = append(r.Steps, store)

	r.Duration = time.Since(start)
	return r, nil
}

// heartbeat logs the queue's progress every p.Heartbeat until the returned
// stop function is called.
func (p *Pipeline) heartbeat(q *queue.Queue, runID string) (stop func()) {
	if p.Heartbeat <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(p.Heartbeat)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				slog.Info("classifying",
					slog.String("run", runID),
					slog.String("state", string(q.State())),
					slog.Int("progress", q.Progress()))
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// DryRun parses the input and reports what a run would do without calling
// the classification service.
func (p *Pipeline) DryRun(in Input) (*Result, error) {
	up, opts, st, err := p.prepare(in)
	if err != nil {
		return &Result{Session: st}, err
	}

	r := &Result{Total: len(up.Records), Session: st}
	r.Steps = append(r.Steps, loadStep(up))

	var blank, parsed, unparsed int
	for i := range up.Records {
		rec := &up.Records[i]
		if v, _ := rec.Value(opts.TextField); strings.TrimSpace(v) == "" {
			blank++
		}
		if opts.DateField == "" {
			continue
		}
		raw, _ := rec.Value(opts.DateField)
		d := dates.Parse(raw, opts.DateOrder)
		if d.OK {
			parsed++
		} else {
			unparsed++
		}
		if d.Ambiguous {
			r.AmbiguousDates++
		}
	}

	r.Steps = append(r.Steps, StepResult{
		Name:    "Classify",
		Summary: fmt.Sprintf("[dry-run] %d responses would be classified (%d blank)", len(up.Records), blank),
	})
	if opts.DateField != "" {
		r.Steps = append(r.Steps, StepResult{
			Name: "Dates",
			Summary: fmt.Sprintf("[dry-run] %d dates parsed, %d unreadable, %d ambiguous (order %s)",
				parsed, unparsed, r.AmbiguousDates, opts.DateOrder),
		})
	}
	if interval := p.cfg.Queue.Interval; interval > 0 && len(up.Records) > 1 {
		eta := time.Duration(len(up.Records)-1) * interval
		r.Steps = append(r.Steps, StepResult{
			Name:    "Pacing",
			Summary: fmt.Sprintf("[dry-run] at least %s at one call per %s", eta.Round(time.Second), interval),
		})
	}
	return r, nil
}

func loadStep(up *Upload) StepResult {
	s := StepResult{
		Name:    "Load",
		Summary: fmt.Sprintf("Read %d responses with %d columns from %s", len(up.Records), len(up.Schema.Fields()), up.FileName),
	}
	if n := len(up.Ragged); n > 0 {
		s.Summary += fmt.Sprintf(" (%d ragged rows)", n)
	}
	return s
}
