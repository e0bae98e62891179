// Package state persists finished sessions and their status events. The
// project-local store is SQLite (.taskpilot/state.db); a shared Postgres
// database can be used instead.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	// DriverSQLite is the pure-Go SQLite driver and the default.
	DriverSQLite = "sqlite"
	// DriverSQLite3 is the cgo SQLite driver.
	DriverSQLite3 = "sqlite3"
	// DriverPostgres stores sessions in PostgreSQL.
	DriverPostgres = "postgres"
)

// DB wraps a database connection with taskpilot-specific operations.
type DB struct {
	conn   *sql.DB
	driver string
	dsn    string
	mu     sync.RWMutex
}

// ProjectDBPath returns the path to the project-local database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".taskpilot", "state.db")
}

// NormalizeDriver maps driver aliases to a supported driver name.
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "modernc":
		return DriverSQLite, nil
	case "sqlite3", "mattn", "cgo":
		return DriverSQLite3, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported state driver %q", driver)
	}
}

// Open opens a database. For the SQLite drivers dsn is a file path whose
// parent directories are created, and WAL mode is enabled for concurrent
// reads.
func Open(driver, dsn string) (*DB, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}

	if driver != DriverPostgres {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverPostgres {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
	} else {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	return &DB{conn: conn, driver: driver, dsn: dsn}, nil
}

// OpenProject opens and migrates the project-local SQLite database.
func OpenProject(projectRoot string) (*DB, error) {
	db, err := Open(DriverSQLite, ProjectDBPath(projectRoot))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Driver returns the normalized driver name.
func (db *DB) Driver() string { return db.driver }

// Path returns the DSN the database was opened with.
func (db *DB) Path() string { return db.dsn }

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Sessions},
		{2, migrationV2Tasks},
		{3, migrationV3Events},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec(db.rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)"),
			m.version, formatTime(time.Now())); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Times are stored as fixed-width UTC text so they sort lexically on every
// driver.
const migrationV1Sessions = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	input TEXT NOT NULL DEFAULT '',
	framework TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL DEFAULT 'running',
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	finished_at TEXT,
	task_count INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	report TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
`

const migrationV2Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	id TEXT NOT NULL,
	position INTEGER NOT NULL,
	text TEXT NOT NULL,
	category TEXT NOT NULL,
	priority_score REAL NOT NULL DEFAULT 0,
	phase INTEGER NOT NULL DEFAULT -1,
	state TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	depends_on TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, id)
);

CREATE TABLE IF NOT EXISTS warnings (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	task_ids TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);
`

const migrationV3Events = `
CREATE TABLE IF NOT EXISTS events (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	type TEXT NOT NULL,
	task_id TEXT NOT NULL DEFAULT '',
	from_state TEXT NOT NULL DEFAULT '',
	to_state TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	phase INTEGER NOT NULL DEFAULT -1,
	attempt INTEGER NOT NULL DEFAULT 0,
	detail TEXT NOT NULL DEFAULT '',
	at TEXT NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_events_task ON events(session_id, task_id);
`

// rebind rewrites ? placeholders to $n for Postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Exec executes a query that doesn't return rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.ExecContext(ctx, db.rebind(query), args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryContext(ctx, db.rebind(query), args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRowContext(ctx, db.rebind(query), args...)
}

// Tx is a transaction whose queries use ? placeholders on every driver.
type Tx struct {
	tx *sql.Tx
	db *DB
}

// Exec executes a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.db.rebind(query), args...)
}

// Transaction runs the given function within a transaction.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: tx, db: db}); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime formats a time.Time for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored time string.
func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// parseNullableTime parses a nullable stored time string.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}
