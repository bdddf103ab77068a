package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate brings the schema up to the latest version, tracked in
// PRAGMA user_version, and reports the versions before and after.
func migrate(conn *sql.DB) (from, to int, err error) {
	from, err = getSchemaVersion(conn)
	if err != nil {
		return 0, 0, err
	}
	to = from
	if from >= latestVersion() {
		return from, to, nil
	}

	for _, m := range migrations {
		if m.Version <= to {
			continue
		}
		slog.Debug("applying migration", slog.Int("version", m.Version), slog.String("description", m.Description))

		tx, err := conn.Begin()
		if err != nil {
			return from, to, fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return from, to, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := tx.Commit(); err != nil {
			return from, to, fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite does not apply user_version inside a transaction.
		// A crash here re-runs the migration, whose DDL is idempotent.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return from, to, fmt.Errorf("setting version %d: %w", m.Version, err)
		}
		to = m.Version
	}
	return from, to, nil
}
