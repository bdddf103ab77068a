// Package survey defines survey records and the schema discovered from the
// header row of an upload.
package survey

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TobiSchelling/surveylens/internal/csvcodec"
)

var (
	// ErrNoHeader is returned when the table has no usable header row.
	ErrNoHeader = errors.New("header row has no field names")
	// ErrUnknownField is returned when a designated column is not in the header.
	ErrUnknownField = errors.New("unknown field")
)

// FirstRowID is the RowID of the first data row. Row IDs follow the line
// numbers of the source file with the header on line 1.
const FirstRowID = 2

// Schema is the ordered list of field names taken from the header.
type Schema struct {
	fields []string
	index  map[string]int
}

// NewSchema builds a schema. Duplicate names keep their first position.
func NewSchema(fields []string) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(fields))}
	nonEmpty := 0
	for i, f := range fields {
		s.fields = append(s.fields, f)
		if f != "" {
			nonEmpty++
		}
		if _, dup := s.index[f]; !dup {
			s.index[f] = i
		}
	}
	if nonEmpty == 0 {
		return nil, ErrNoHeader
	}
	return s, nil
}

// Fields returns a copy of the field names in header order.
func (s *Schema) Fields() []string {
	return append([]string(nil), s.fields...)
}

// Has reports whether name is a header field.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Require checks that every non-empty name is a header field.
func (s *Schema) Require(names ...string) error {
	for _, n := range names {
		if n != "" && !s.Has(n) {
			return fmt.Errorf("%w %q (available: %s)", ErrUnknownField, n, strings.Join(s.fields, ", "))
		}
	}
	return nil
}

// Record is one data row keyed by field name.
type Record struct {
	RowID  int               `json:"row_id"`
	Values map[string]string `json:"values"`
}

// Value returns a field value; missing trailing fields report false.
func (r *Record) Value(name string) (string, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// FromTable reinterprets parsed rows as records.
func FromTable(t *csvcodec.Table) (*Schema, []Record, error) {
	schema, err := NewSchema(t.Header())
	if err != nil {
		return nil, nil, err
	}
	data := t.Data()
	records := make([]Record, 0, len(data))
	for i, row := range data {
		records = append(records, schema.record(FirstRowID+i, row))
	}
	return schema, records, nil
}

func (s *Schema) record(rowID int, row csvcodec.Row) Record {
	values := make(map[string]string, len(s.fields))
	for name, i := range s.index {
		if i < len(row) {
			values[name] = row[i]
		}
	}
	return Record{RowID: rowID, Values: values}
}
