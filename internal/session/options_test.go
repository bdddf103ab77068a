package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/surveylens/internal/aggregate"
	"github.com/TobiSchelling/surveylens/internal/filter"
)

func TestApply(t *testing.T) {
	top := 3
	s, err := Apply(New(), Options{
		Filters: []string{"region=EU", "sentiment=negative", "region=US"},
		From:    "2024-01-01",
		To:      "2024-01-31",
		Period:  "month",
		GroupBy: "intent",
		TopN:    &top,
		Expand:  []string{"Delivery/Speed"},
	})
	require.NoError(t, err)

	assert.Equal(t, filter.Set{"region": "US", "sentiment": "negative"}, s.Filters)
	require.NotNil(t, s.From)
	require.NotNil(t, s.To)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *s.From)
	assert.True(t, s.To.After(time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, aggregate.PeriodMonth, s.Period)
	assert.Equal(t, "intent", s.GroupBy)
	assert.Equal(t, 3, s.TopN)
	assert.Equal(t, [][]string{{"Delivery", "Speed"}}, s.Expanded)
}

func TestApplyDefaults(t *testing.T) {
	s, err := Apply(New(), Options{})
	require.NoError(t, err)
	assert.Empty(t, s.Filters)
	assert.Nil(t, s.From)
	assert.Nil(t, s.To)
	assert.Equal(t, aggregate.PeriodWeek, s.Period)
	assert.Equal(t, "sentiment", s.GroupBy)
	assert.Equal(t, 10, s.TopN)
}

func TestApplyRejectsBadOptions(t *testing.T) {
	neg := -1
	for name, opts := range map[string]Options{
		"filter":   {Filters: []string{"region"}},
		"from":     {From: "01/02/2024"},
		"to":       {To: "tomorrow"},
		"reversed": {From: "2024-02-01", To: "2024-01-01"},
		"period":   {Period: "year"},
		"top":      {TopN: &neg},
		"expand":   {Expand: []string{"Delivery//Speed"}},
		"escape":   {Expand: []string{"Price%zz"}},
	} {
		_, err := Apply(New(), opts)
		assert.Error(t, err, name)
	}
}

func TestParseTopicPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Delivery", []string{"Delivery"}},
		{"Delivery/Speed", []string{"Delivery", "Speed"}},
		{"Price%2FValue", []string{"Price/Value"}},
		{"Price%2FValue/Too high", []string{"Price/Value", "Too high"}},
	}
	for _, tt := range tests {
		got, err := ParseTopicPath(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "/Delivery", "Delivery/", "%"} {
		_, err := ParseTopicPath(bad)
		assert.Error(t, err, bad)
	}
}
