// Package dates converts free-form survey date cells into calendar dates.
//
// Parsing is best effort. A general parser runs first; numeric dates of the
// form D/D/YYYY (or D-D-YYYY) that it rejects are retried as month/day/year
// and then as day/month/year. When both numeric components are 12 or less
// the reading is ambiguous, and Result.Ambiguous says so instead of guessing
// silently.
//
// A bare number is never a date. The general parser would read "2024" as a
// year and "1700000000" as a Unix timestamp, which in a survey cell is far
// more likely a score or an ID.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Order selects how purely numeric dates are read.
type Order string

const (
	OrderAuto Order = "auto"
	OrderMDY  Order = "mdy"
	OrderDMY  Order = "dmy"
)

// ParseOrder validates a configured order; empty means OrderAuto.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OrderAuto, nil
	case OrderAuto, OrderMDY, OrderDMY:
		return o, nil
	default:
		return "", fmt.Errorf("unknown date order %q (want auto, mdy or dmy)", s)
	}
}

// Result is the outcome of parsing one cell.
type Result struct {
	Time      time.Time
	OK        bool
	Ambiguous bool
}

var (
	numericDate = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})$`)
	bareNumber  = regexp.MustCompile(`^[+-]?\d+([.,]\d+)?$`)
)

// Normalize parses raw with the automatic strategy.
func Normalize(raw string) (time.Time, bool) {
	r := Parse(raw, OrderAuto)
	return r.Time, r.OK
}

// Parse parses raw using the given order for numeric dates. Returned times
// are in UTC.
func Parse(raw string, order Order) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" || bareNumber.MatchString(raw) {
		return Result{}
	}

	var r Result
	m := numericDate.FindStringSubmatch(raw)
	if m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		switch order {
		case OrderMDY:
			t, ok := civil(m[3], a, b)
			return withTime(r, t, ok)
		case OrderDMY:
			t, ok := civil(m[3], b, a)
			return withTime(r, t, ok)
		}
		r.Ambiguous = a != b && a <= 12 && b <= 12
	}

	if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
		return withTime(r, t.UTC(), true)
	}
	if m == nil {
		return Result{}
	}

	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	if t, ok := civil(m[3], a, b); ok {
		return withTime(r, t, true)
	}
	if t, ok := civil(m[3], b, a); ok {
		return withTime(r, t, true)
	}
	return Result{}
}

func withTime(r Result, t time.Time, ok bool) Result {
	if !ok {
		return Result{}
	}
	r.Time, r.OK = t, true
	return r
}

// civil builds a date and rejects values time.Date would normalize
// (for example February 30th).
func civil(year string, month, day int) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
