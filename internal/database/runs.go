package database

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ErrAmbiguousRunID is returned when a run ID prefix matches several runs.
var ErrAmbiguousRunID = errors.New("run ID prefix matches more than one run")

// NewRunID returns a new time-ordered run ID.
func NewRunID() string {
	return ulid.MustNew(ulid.Now(), ulid.Monotonic(rand.Reader, 0)).String()
}

// CreateRun inserts a run. An empty ID is filled in with NewRunID.
func (db *DB) CreateRun(r *Run) error {
	if r.ID == "" {
		r.ID = NewRunID()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	headers, err := json.Marshal(r.Headers)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT INTO runs (id, source_file, text_field, date_field, headers, total, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SourceFile, r.TextField, r.DateField, string(headers), r.Total, r.Status,
	)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// UpdateRunProgress records how many responses have been processed.
func (db *DB) UpdateRunProgress(id string, processed, ambiguousDates int) error {
	_, err := db.conn.Exec(
		"UPDATE runs SET processed = ?, ambiguous_dates = ? WHERE id = ?",
		processed, ambiguousDates, id,
	)
	return err
}

// FinishRun sets the final status of a run.
func (db *DB) FinishRun(id, status string) error {
	_, err := db.conn.Exec(
		"UPDATE runs SET status = ?, finished_at = datetime('now') WHERE id = ?",
		status, id,
	)
	return err
}

const runColumns = `id, source_file, text_field, date_field, headers, total, processed,
	status, ambiguous_dates, started_at, finished_at`

// GetRun returns a run by ID, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// FindRun resolves a full ID or a unique prefix. "latest" selects the
// newest run. Returns nil if nothing matches.
func (db *DB) FindRun(ref string) (*Run, error) {
	if ref == "latest" {
		runs, err := db.ListRuns(1)
		if err != nil || len(runs) == 0 {
			return nil, err
		}
		return &runs[0], nil
	}

	rows, err := db.conn.Query(
		"SELECT "+runColumns+" FROM runs WHERE id LIKE ? || '%' ORDER BY id DESC LIMIT 2", ref,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	switch len(runs) {
	case 0:
		return nil, nil
	case 1:
		return &runs[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguousRunID, ref)
	}
}

// ListRuns returns runs newest first. A non-positive limit returns all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// DeleteRun removes a run and its responses. Returns false if it did not exist.
func (db *DB) DeleteRun(id string) (bool, error) {
	result, err := db.conn.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM runs", &s.Runs},
		{"SELECT COUNT(*) FROM runs WHERE status = 'completed'", &s.CompletedRuns},
		{"SELECT COUNT(*) FROM responses", &s.Responses},
		{"SELECT COUNT(*) FROM responses WHERE classification IS NOT NULL", &s.Classified},
		{"SELECT COUNT(*) FROM responses WHERE error IS NOT NULL", &s.Errored},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var headers string
	if err := row.Scan(&r.ID, &r.SourceFile, &r.TextField, &r.DateField, &headers,
		&r.Total, &r.Processed, &r.Status, &r.AmbiguousDates, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &r.Headers); err != nil {
		return nil, fmt.Errorf("decoding headers of run %s: %w", r.ID, err)
	}
	return &r, nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
