// Package csvcodec reads and writes the permissive comma-separated format
// used for survey uploads and exports.
//
// Parsing never rejects a row for having the wrong number of fields. Rows
// shorter or longer than the header are returned as-is and reported through
// Table.Warnings so callers can surface them without aborting ingestion.
package csvcodec

import (
	"errors"
	"strings"
)

// ErrEmptyInput is returned when the input contains no non-blank lines.
var ErrEmptyInput = errors.New("csv input is empty")

// ListSeparator joins multi-valued fields into a single cell.
const ListSeparator = "|"

// Row is one parsed line, addressed by position.
type Row []string

// RaggedRow describes a row whose field count differs from the header.
type RaggedRow struct {
	Index    int // position in Table.Rows
	Fields   int
	Expected int
}

// Table is the result of parsing. Rows[0] is the header.
type Table struct {
	Rows     []Row
	Warnings []RaggedRow
}

// Header returns the first row.
func (t *Table) Header() Row {
	if len(t.Rows) == 0 {
		return nil
	}
	return t.Rows[0]
}

// Data returns every row after the header.
func (t *Table) Data() []Row {
	if len(t.Rows) < 2 {
		return nil
	}
	return t.Rows[1:]
}

// Parse splits text into rows. Lines end in LF or CRLF; lines that are
// blank after trimming are dropped.
func Parse(text string) (*Table, error) {
	t := &Table{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		t.Rows = append(t.Rows, ParseLine(line))
	}
	if len(t.Rows) == 0 {
		return nil, ErrEmptyInput
	}

	expected := len(t.Rows[0])
	for i, row := range t.Rows[1:] {
		if len(row) != expected {
			t.Warnings = append(t.Warnings, RaggedRow{Index: i + 1, Fields: len(row), Expected: expected})
		}
	}
	return t, nil
}

// ParseLine splits a single line into trimmed fields. A double quote toggles
// quoted mode; a doubled quote inside quoted mode yields one literal quote.
func ParseLine(line string) Row {
	var (
		fields  Row
		current strings.Builder
		quoted  bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			if quoted && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
				continue
			}
			quoted = !quoted
		case c == ',' && !quoted:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(c)
		}
	}
	return append(fields, strings.TrimSpace(current.String()))
}

// EscapeField quotes s when it contains a comma, a quote or a line break.
func EscapeField(s string) string {
	if !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// JoinList collapses a multi-valued field into one cell value.
func JoinList(values []string) string {
	return strings.Join(values, ListSeparator)
}

// Serialize writes rows back to text, one LF-terminated line per row.
func Serialize(rows []Row) string {
	var b strings.Builder
	for _, row := range rows {
		for i, field := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(EscapeField(field))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
