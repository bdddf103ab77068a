// Package export writes classified records back out as CSV.
package export

import (
	"fmt"
	"os"
	"strconv"

	"github.com/TobiSchelling/surveylens/internal/csvcodec"
	"github.com/TobiSchelling/surveylens/internal/survey"
)

// ClassificationColumns follow the original columns in every export.
var ClassificationColumns = []string{
	"sentiment", "sentiment_score", "intent", "emotions", "topics",
	"explanation", "confidence", "redacted_excerpt",
}

// Header returns the export header row for the given source headers.
func Header(headers []string) csvcodec.Row {
	row := make(csvcodec.Row, 0, 1+len(headers)+len(ClassificationColumns))
	row = append(row, "rowId")
	row = append(row, headers...)
	return append(row, ClassificationColumns...)
}

// Rows converts records into CSV rows, header first. Missing values are
// empty cells; list fields are pipe-joined.
func Rows(records []survey.ClassifiedRecord, headers []string) []csvcodec.Row {
	rows := make([]csvcodec.Row, 0, len(records)+1)
	rows = append(rows, Header(headers))
	for i := range records {
		rows = append(rows, row(&records[i], headers))
	}
	return rows
}

func row(r *survey.ClassifiedRecord, headers []string) csvcodec.Row {
	out := make(csvcodec.Row, 0, 1+len(headers)+len(ClassificationColumns))
	out = append(out, strconv.Itoa(r.RowID))
	for _, h := range headers {
		v, _ := r.Value(h)
		out = append(out, v)
	}

	c := r.Classification
	if c == nil {
		return append(out, make([]string, len(ClassificationColumns))...)
	}
	return append(out,
		string(c.Sentiment),
		strconv.FormatFloat(c.SentimentScore, 'f', -1, 64),
		string(c.Intent),
		csvcodec.JoinList(c.Emotions),
		csvcodec.JoinList(c.Topics),
		c.Explanation,
		strconv.Itoa(c.Confidence),
		c.RedactedExcerpt,
	)
}

// CSV renders records with the original headers followed by the
// classification columns.
func CSV(records []survey.ClassifiedRecord, headers []string) string {
	return csvcodec.Serialize(Rows(records, headers))
}

// WriteFile writes the CSV export to path.
func WriteFile(path string, records []survey.ClassifiedRecord, headers []string) error {
	if err := os.WriteFile(path, []byte(CSV(records, headers)), 0o644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}
