// Package filter narrows classified records by dimension values and dates.
package filter

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/surveylens/internal/survey"
)

// All is the "no filter" choice for a dimension.
const All = "All"

// Set maps a dimension to the single value a record must have. Entries
// whose value is All or empty impose no constraint.
type Set map[string]string

// Active reports whether any entry constrains records.
func (s Set) Active() bool {
	for _, v := range s {
		if isActive(v) {
			return true
		}
	}
	return false
}

func isActive(v string) bool {
	return v != "" && v != All
}

// DateRange holds optional inclusive bounds.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Active reports whether either bound is set.
func (d DateRange) Active() bool {
	return d.From != nil || d.To != nil
}

func (d DateRange) contains(t *time.Time) bool {
	if !d.Active() {
		return true
	}
	if t == nil {
		return false
	}
	if d.From != nil && t.Before(*d.From) {
		return false
	}
	if d.To != nil && t.After(*d.To) {
		return false
	}
	return true
}

// Apply returns the records matching every active entry of set and the
// date range, in their original order. When nothing is active the input
// slice itself is returned.
func Apply(records []survey.ClassifiedRecord, set Set, dr DateRange) []survey.ClassifiedRecord {
	if !set.Active() && !dr.Active() {
		return records
	}

	out := make([]survey.ClassifiedRecord, 0, len(records))
	for i := range records {
		if matches(&records[i], set, dr) {
			out = append(out, records[i])
		}
	}
	return out
}

func matches(r *survey.ClassifiedRecord, set Set, dr DateRange) bool {
	for dim, want := range set {
		if !isActive(want) {
			continue
		}
		got, ok := r.Field(dim)
		if !ok || got != want {
			return false
		}
	}
	return dr.contains(r.Date)
}

// Values lists the distinct non-empty values of a dimension, sorted, for
// populating filter choices.
func Values(records []survey.ClassifiedRecord, dimension string) []string {
	seen := make(map[string]struct{})
	for i := range records {
		if v, ok := records[i].Field(dimension); ok && v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ParseSet parses "dimension=value" pairs. A repeated dimension keeps the
// last value.
func ParseSet(pairs []string) (Set, error) {
	set := make(Set, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q (want dimension=value)", p)
		}
		set[k] = strings.TrimSpace(v)
	}
	return set, nil
}

// Dimensions returns the dimension names of set with active values, sorted.
func (s Set) Dimensions() []string {
	var dims []string
	for k, v := range s {
		if isActive(v) {
			dims = append(dims, k)
		}
	}
	slices.Sort(dims)
	return dims
}
