package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"shipfilter/internal/compiler"
)

// Dialect abstracts database-specific SQL and driver behavior.
type Dialect interface {
	// Name returns "duckdb", "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("duckdb", "pgx" or "sqlite").
	DriverName() string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// Filter returns the compiler dialect that emits filters for this engine.
	Filter() compiler.Dialect

	// Configure applies connection-level settings after the pool is opened.
	Configure(ctx context.Context, db *sql.DB, poolSize int) error

	// SystemTablesSQL returns the DDL for the confirmation and audit tables.
	SystemTablesSQL() string

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error)

	// GetColumns returns column names and declared types for a table.
	GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error)

	// TimeValue encodes a timestamp for storage.
	TimeValue(t time.Time) any

	// InsertIgnore returns an INSERT that skips rows violating the primary key.
	InsertIgnore(table string, cols []string, values string) string

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error

	// NeedsBoolFix returns true if boolean columns come back as integers (SQLite).
	NeedsBoolFix() bool
}

// NewDialect creates a Dialect for the given driver name.
func NewDialect(driver string) (Dialect, error) {
	switch driver {
	case "", "duckdb":
		return &DuckDBDialect{}, nil
	case "postgres":
		return &PostgresDialect{}, nil
	case "sqlite":
		return &SQLiteDialect{}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}

// onConflictDoNothing is understood by PostgreSQL, SQLite and DuckDB.
func onConflictDoNothing(table string, cols []string, values string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING", table, strings.Join(cols, ", "), values)
}
