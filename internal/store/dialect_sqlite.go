package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"shipfilter/internal/compiler"
)

// sqliteTimeLayout is fixed-width so stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string             { return "sqlite" }
func (d *SQLiteDialect) DriverName() string       { return "sqlite" }
func (d *SQLiteDialect) Filter() compiler.Dialect { return compiler.SQLiteDialect{} }
func (d *SQLiteDialect) NeedsBoolFix() bool       { return true }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

// Configure pins SQLite to a single writer with WAL for concurrent reads.
func (d *SQLiteDialect) Configure(ctx context.Context, db *sql.DB, _ int) error {
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	return nil
}

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?1)", tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, colType string
		if err := rows.Scan(&name, &colType); err != nil {
			return nil, err
		}
		cols[name] = colType
	}
	return cols, rows.Err()
}

func (d *SQLiteDialect) TimeValue(t time.Time) any {
	return t.UTC().Format(sqliteTimeLayout)
}

func (d *SQLiteDialect) InsertIgnore(table string, cols []string, values string) string {
	return onConflictDoNothing(table, cols, values)
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	if strings.Contains(errStr, "no such table") {
		return fmt.Errorf("%w: %w", ErrUnknownTable, err)
	}
	return err
}

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _confirmations (
    session_id     TEXT NOT NULL,
    expansion_hash TEXT NOT NULL,
    canonical_key  TEXT NOT NULL,
    expansion      TEXT NOT NULL,
    confirmed_at   TEXT NOT NULL,
    PRIMARY KEY (session_id, expansion_hash)
);

CREATE TABLE IF NOT EXISTS _audit_events (
    id                 TEXT PRIMARY KEY,
    session_id         TEXT,
    action             TEXT NOT NULL,
    status             TEXT NOT NULL,
    code               TEXT,
    spec_hash          TEXT,
    compiled_hash      TEXT,
    schema_signature   TEXT,
    dictionary_version TEXT,
    dialect            TEXT,
    row_count          INTEGER,
    duration_ms        REAL,
    created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_created ON _audit_events (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_session ON _audit_events (session_id, created_at DESC);
`

// Compile-time check
var _ Dialect = (*SQLiteDialect)(nil)
