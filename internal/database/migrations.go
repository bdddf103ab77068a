package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source_file TEXT NOT NULL,
    text_field TEXT NOT NULL,
    date_field TEXT,
    headers TEXT NOT NULL,
    total INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running',
    started_at TEXT DEFAULT (datetime('now')),
    finished_at TEXT
);

CREATE TABLE IF NOT EXISTS responses (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    row_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    fields TEXT NOT NULL,
    response_date TEXT,
    classification TEXT,
    error TEXT,
    PRIMARY KEY (run_id, row_id)
);

CREATE INDEX IF NOT EXISTS idx_responses_run_seq ON responses(run_id, seq);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "track ambiguous dates per run",
		Up: func(tx *sql.Tx) error {
			var n int
			if err := tx.QueryRow(
				"SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name = 'ambiguous_dates'",
			).Scan(&n); err != nil {
				return err
			}
			if n > 0 {
				return nil
			}
			_, err := tx.Exec("ALTER TABLE runs ADD COLUMN ambiguous_dates INTEGER NOT NULL DEFAULT 0")
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
