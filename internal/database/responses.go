package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/TobiSchelling/surveylens/internal/survey"
)

const dateLayout = time.RFC3339

// InsertResponse stores one classified record of a run. seq is the
// record's position in the run and defines read order.
func (db *DB) InsertResponse(runID string, seq int, cr survey.ClassifiedRecord) error {
	fields, err := json.Marshal(cr.Record.Values)
	if err != nil {
		return err
	}

	var date, classification, errMsg *string
	if cr.Date != nil {
		d := cr.Date.UTC().Format(dateLayout)
		date = &d
	}
	if cr.Classification != nil {
		b, err := json.Marshal(cr.Classification)
		if err != nil {
			return err
		}
		c := string(b)
		classification = &c
	}
	if cr.Error != "" {
		errMsg = &cr.Error
	}

	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO responses
		(run_id, row_id, seq, fields, response_date, classification, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, cr.RowID, seq, string(fields), date, classification, errMsg,
	)
	if err != nil {
		return fmt.Errorf("storing row %d: %w", cr.RowID, err)
	}
	return nil
}

// GetResponses returns the classified records of a run in input order.
func (db *DB) GetResponses(runID string) ([]survey.ClassifiedRecord, error) {
	rows, err := db.conn.Query(
		`SELECT row_id, fields, response_date, classification, error
		FROM responses WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []survey.ClassifiedRecord
	for rows.Next() {
		var cr survey.ClassifiedRecord
		var fields string
		var date, classification, errMsg *string
		if err := rows.Scan(&cr.RowID, &fields, &date, &classification, &errMsg); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &cr.Record.Values); err != nil {
			return nil, fmt.Errorf("decoding row %d: %w", cr.RowID, err)
		}
		if date != nil {
			if t, err := time.Parse(dateLayout, *date); err == nil {
				cr.Date = &t
			}
		}
		if classification != nil {
			var c survey.Classification
			if err := json.Unmarshal([]byte(*classification), &c); err != nil {
				return nil, fmt.Errorf("decoding classification of row %d: %w", cr.RowID, err)
			}
			cr.Classification = &c
		}
		if errMsg != nil {
			cr.Error = *errMsg
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}
