// Package session holds the state of one analysis session as a plain,
// serializable value. Every change goes through a transition function that
// returns a new State; the UI and CLI render Derive(state) and never depend
// on how the pipeline gets there.
package session

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/TobiSchelling/surveylens/internal/aggregate"
	"github.com/TobiSchelling/surveylens/internal/database"
	"github.com/TobiSchelling/surveylens/internal/filter"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

// Phase is the coarse step of the workflow.
type Phase string

const (
	PhaseEmpty     Phase = "empty"
	PhaseLoaded    Phase = "loaded"
	PhaseAnalyzing Phase = "analyzing"
	PhaseDone      Phase = "done"
	PhaseCancelled Phase = "cancelled"
	PhaseFailed    Phase = "failed"
)

// ErrWrongPhase is returned by transitions that are not allowed in the
// current phase.
var ErrWrongPhase = errors.New("transition not allowed in this phase")

// State is everything needed to redraw a session.
type State struct {
	Phase     Phase    `json:"phase"`
	FileName  string   `json:"file_name,omitempty"`
	Headers   []string `json:"headers,omitempty"`
	TextField string   `json:"text_field,omitempty"`
	DateField string   `json:"date_field,omitempty"`
	RunID     string   `json:"run_id,omitempty"`
	Total     int      `json:"total"`
	Progress  int      `json:"progress"`
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`

	Records []survey.ClassifiedRecord `json:"records,omitempty"`

	Filters  filter.Set       `json:"filters,omitempty"`
	From     *time.Time       `json:"from,omitempty"`
	To       *time.Time       `json:"to,omitempty"`
	Period   aggregate.Period `json:"period"`
	GroupBy  string           `json:"group_by"`
	TopN     int              `json:"top_n"`
	Expanded [][]string       `json:"expanded,omitempty"`
}

// New returns an empty session with default chart settings.
func New() State {
	return State{Phase: PhaseEmpty, Period: aggregate.PeriodWeek, GroupBy: survey.FieldSentiment, TopN: 10}
}

// Loaded records a parsed upload. Any previous results are dropped.
func Loaded(s State, fileName string, headers []string, warnings []string) State {
	next := New()
	next.Period, next.GroupBy, next.TopN = s.Period, s.GroupBy, s.TopN
	next.Phase = PhaseLoaded
	next.FileName = fileName
	next.Headers = slices.Clone(headers)
	next.Warnings = slices.Clone(warnings)
	return next
}

// SelectColumns chooses the text column and the optional date column.
func SelectColumns(s State, textField, dateField string) (State, error) {
	if s.Phase != PhaseLoaded {
		return s, fmt.Errorf("%w: select columns while %s", ErrWrongPhase, s.Phase)
	}
	if !slices.Contains(s.Headers, textField) {
		return s, fmt.Errorf("%w %q", survey.ErrUnknownField, textField)
	}
	if dateField != "" && !slices.Contains(s.Headers, dateField) {
		return s, fmt.Errorf("%w %q", survey.ErrUnknownField, dateField)
	}
	s.TextField, s.DateField = textField, dateField
	return s, nil
}

// Started marks the beginning of a batch.
func Started(s State, runID string, total int) (State, error) {
	if s.Phase != PhaseLoaded || s.TextField == "" {
		return s, fmt.Errorf("%w: start while %s", ErrWrongPhase, s.Phase)
	}
	s.Phase = PhaseAnalyzing
	s.RunID = runID
	s.Total = total
	s.Progress = 0
	s.Records = nil
	s.Error = ""
	return s, nil
}

// Progressed appends one finished record.
func Progressed(s State, percent int, rec survey.ClassifiedRecord) State {
	if s.Phase != PhaseAnalyzing {
		return s
	}
	// Force a copy so earlier states keep their own slice.
	s.Records = append(s.Records[:len(s.Records):len(s.Records)], rec)
	if percent > s.Progress {
		s.Progress = percent
	}
	return s
}

// Finished ends the batch. cancelled is true when it stopped early.
func Finished(s State, cancelled bool) State {
	if s.Phase != PhaseAnalyzing {
		return s
	}
	if cancelled {
		s.Phase = PhaseCancelled
	} else {
		s.Phase = PhaseDone
		s.Progress = 100
	}
	return s
}

// Failed records a fatal error, such as an ingestion failure.
func Failed(s State, err error) State {
	s.Phase = PhaseFailed
	s.Error = err.Error()
	return s
}

// FromRun rebuilds a session from a stored run and the responses saved so
// far. The phase follows the run status and an unfinished run keeps the
// progress it had reached.
func FromRun(run *database.Run, records []survey.ClassifiedRecord) State {
	s := Loaded(New(), run.SourceFile, run.Headers, nil)
	s.RunID = run.ID
	s.TextField = run.TextField
	if run.DateField != nil {
		s.DateField = *run.DateField
	}
	s.Total = run.Total
	s.Records = records

	switch run.Status {
	case database.StatusCompleted:
		s.Phase, s.Progress = PhaseDone, 100
	case database.StatusCancelled:
		s.Phase, s.Progress = PhaseCancelled, partial(run.Processed, run.Total)
	default:
		s.Phase, s.Progress = PhaseAnalyzing, partial(run.Processed, run.Total)
	}
	return s
}

// partial is the progress of a run that has not completed. It never
// reaches 100.
func partial(processed, total int) int {
	if total <= 0 || processed <= 0 {
		return 0
	}
	return min(99, int(math.Round(float64(processed)/float64(total)*100)))
}

// SetFilter sets or clears (value All or "") one dimension filter.
func SetFilter(s State, dimension, value string) State {
	f := make(filter.Set, len(s.Filters)+1)
	for k, v := range s.Filters {
		f[k] = v
	}
	if value == "" || value == filter.All {
		delete(f, dimension)
	} else {
		f[dimension] = value
	}
	s.Filters = f
	return s
}

// SetDateRange sets the inclusive date bounds; nil clears a bound.
func SetDateRange(s State, from, to *time.Time) State {
	s.From, s.To = from, to
	return s
}

// SetChart changes the time series settings.
func SetChart(s State, period aggregate.Period, groupBy string) State {
	s.Period = period
	if groupBy != "" {
		s.GroupBy = groupBy
	}
	return s
}

// ToggleTopic expands or collapses the topic node at path.
func ToggleTopic(s State, path []string) State {
	i := slices.IndexFunc(s.Expanded, func(p []string) bool { return slices.Equal(p, path) })
	if i >= 0 {
		s.Expanded = slices.Delete(slices.Clone(s.Expanded), i, i+1)
	} else {
		s.Expanded = append(slices.Clone(s.Expanded), slices.Clone(path))
	}
	return s
}
