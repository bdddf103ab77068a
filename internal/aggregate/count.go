// Package aggregate derives counts, topic trees and time series from
// classified records. Every function is total: records with missing
// fields simply contribute nothing.
package aggregate

import (
	"slices"

	"github.com/TobiSchelling/surveylens/internal/survey"
)

// Count is one value of a dimension and how often it occurs.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CountBy tallies the values of field, most frequent first with ties in
// first-seen order. For list fields (topics, emotions) every element counts.
// With topN > 0 the result is cut to the top N and then reversed, so the
// largest bar comes last.
func CountBy(records []survey.ClassifiedRecord, field string, topN int) []Count {
	index := make(map[string]int)
	var counts []Count
	for i := range records {
		for _, v := range records[i].Values(field) {
			if v == "" {
				continue
			}
			j, ok := index[v]
			if !ok {
				j = len(counts)
				index[v] = j
				counts = append(counts, Count{Value: v})
			}
			counts[j].Count++
		}
	}

	slices.SortStableFunc(counts, func(a, b Count) int { return b.Count - a.Count })

	if topN > 0 {
		if len(counts) > topN {
			counts = counts[:topN]
		}
		slices.Reverse(counts)
	}
	return counts
}
