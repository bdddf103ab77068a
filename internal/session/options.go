package session

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/surveylens/internal/aggregate"
	"github.com/TobiSchelling/surveylens/internal/filter"
)

const dayLayout = "2006-01-02"

// Options are view settings in their textual form, as they arrive from
// query strings and command-line flags.
type Options struct {
	Filters []string // dimension=value pairs
	From    string   // YYYY-MM-DD
	To      string   // YYYY-MM-DD, inclusive
	Period  string
	GroupBy string
	TopN    *int
	Expand  []string // topic paths, see ParseTopicPath
}

// Apply validates opts and applies them to s.
func Apply(s State, opts Options) (State, error) {
	set, err := filter.ParseSet(opts.Filters)
	if err != nil {
		return s, err
	}
	for _, dim := range set.Dimensions() {
		s = SetFilter(s, dim, set[dim])
	}

	from, err := parseDay(opts.From, false)
	if err != nil {
		return s, err
	}
	to, err := parseDay(opts.To, true)
	if err != nil {
		return s, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return s, fmt.Errorf("date range ends before it starts")
	}
	s = SetDateRange(s, from, to)

	period, err := aggregate.ParsePeriod(opts.Period)
	if err != nil {
		return s, err
	}
	s = SetChart(s, period, opts.GroupBy)

	if opts.TopN != nil {
		if *opts.TopN < 0 {
			return s, fmt.Errorf("invalid top %d", *opts.TopN)
		}
		s.TopN = *opts.TopN
	}

	for _, p := range opts.Expand {
		path, err := ParseTopicPath(p)
		if err != nil {
			return s, err
		}
		s = ToggleTopic(s, path)
	}
	return s, nil
}

// ParseTopicPath splits a topic path such as "Delivery/Speed". A "/" inside
// a topic name is written as %2F, so "Price%2FValue" is a single topic.
func ParseTopicPath(p string) ([]string, error) {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		seg, err := url.PathUnescape(part)
		if err != nil || seg == "" {
			return nil, fmt.Errorf("invalid topic path %q", p)
		}
		parts[i] = seg
	}
	return parts, nil
}

// parseDay parses a day bound. Upper bounds cover the whole day.
func parseDay(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
