package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultBusyTimeout is how long a write waits for another process (for
// example `analyze` while `serve` reads) before failing with SQLITE_BUSY.
const DefaultBusyTimeout = 5 * time.Second

// DB is the run and response store.
type DB struct {
	conn *sql.DB
	path string
}

type options struct {
	busyTimeout time.Duration
}

// Option customises Open.
type Option func(*options)

// WithBusyTimeout sets how long a locked database is retried. Zero keeps
// DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// Open creates or opens the store at dbPath and migrates it.
//
// Pragmas go into the DSN so that every pooled connection gets them, not
// only the first one.
func Open(dbPath string, opts ...Option) (*DB, error) {
	o := options{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(dbPath, o))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening database %s: %w", dbPath, err)
	}

	from, to, err := migrate(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	if from != to {
		slog.Info("database schema upgraded", slog.String("path", dbPath), slog.Int("from", from), slog.Int("to", to))
	}

	return &DB{conn: conn, path: dbPath}, nil
}

func dsn(path string, o options) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.busyTimeout.Milliseconds()))
	return path + "?" + q.Encode()
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
