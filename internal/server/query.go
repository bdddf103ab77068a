package server

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/TobiSchelling/surveylens/internal/session"
)

// queryOptions maps view query parameters onto session options:
//
//	f=dimension=value (repeatable), from, to (YYYY-MM-DD, inclusive),
//	period, group, top, expand=Topic/Sub (repeatable, "/" in a name as %2F)
func queryOptions(q url.Values) (session.Options, error) {
	opts := session.Options{
		Filters: q["f"],
		From:    q.Get("from"),
		To:      q.Get("to"),
		Period:  q.Get("period"),
		GroupBy: q.Get("group"),
		Expand:  q["expand"],
	}
	if top := q.Get("top"); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil {
			return opts, fmt.Errorf("invalid top %q", top)
		}
		opts.TopN = &n
	}
	return opts, nil
}
