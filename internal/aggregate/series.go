package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/surveylens/internal/survey"
)

// Period is a calendar bucket size.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod validates a period name; empty means week.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodWeek, nil
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	default:
		return "", fmt.Errorf("unknown period %q (want day, week or month)", s)
	}
}

// Truncate returns the start of the bucket containing t, in UTC. Weeks
// start on Monday.
func (p Period) Truncate(t time.Time) time.Time {
	t = t.UTC()
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodWeek:
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// Bucket is one period with a count for every value of the series.
type Bucket struct {
	Date   time.Time      `json:"date"`
	Counts map[string]int `json:"counts"`
}

// Series is a time series grouped by the values of one dimension. Lines
// and Buckets hold the same numbers: Lines[v][i] == Buckets[i].Counts[v].
type Series struct {
	Dates   []time.Time      `json:"dates"`
	Values  []string         `json:"values"`
	Lines   map[string][]int `json:"lines"`
	Buckets []Bucket         `json:"buckets"`
}

// TimeSeries buckets records by period and counts groupBy values per
// bucket. Only records with both a date and a classification take part.
// Every value seen anywhere appears in every bucket, with explicit zeros.
func TimeSeries(records []survey.ClassifiedRecord, period Period, groupBy string) Series {
	type entry struct {
		bucket time.Time
		values []string
	}

	var entries []entry
	universe := make(map[string]struct{})
	buckets := make(map[time.Time]struct{})
	for i := range records {
		r := &records[i]
		if r.Date == nil || r.Classification == nil {
			continue
		}
		e := entry{bucket: period.Truncate(*r.Date), values: r.Values(groupBy)}
		entries = append(entries, e)
		buckets[e.bucket] = struct{}{}
		for _, v := range e.values {
			if v != "" {
				universe[v] = struct{}{}
			}
		}
	}

	s := Series{Lines: make(map[string][]int)}
	for v := range universe {
		s.Values = append(s.Values, v)
	}
	sort.Strings(s.Values)

	for b := range buckets {
		s.Dates = append(s.Dates, b)
	}
	sort.Slice(s.Dates, func(i, j int) bool { return s.Dates[i].Before(s.Dates[j]) })

	pos := make(map[time.Time]int, len(s.Dates))
	for i, d := range s.Dates {
		pos[d] = i
	}
	for _, v := range s.Values {
		s.Lines[v] = make([]int, len(s.Dates))
	}
	for _, e := range entries {
		i := pos[e.bucket]
		for _, v := range e.values {
			if v != "" {
				s.Lines[v][i]++
			}
		}
	}

	s.Buckets = make([]Bucket, len(s.Dates))
	for i, d := range s.Dates {
		counts := make(map[string]int, len(s.Values))
		for _, v := range s.Values {
			counts[v] = s.Lines[v][i]
		}
		s.Buckets[i] = Bucket{Date: d, Counts: counts}
	}
	return s
}
