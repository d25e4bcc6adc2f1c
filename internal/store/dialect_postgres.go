package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"shipfilter/internal/compiler"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string             { return "postgres" }
func (d *PostgresDialect) DriverName() string       { return "pgx" }
func (d *PostgresDialect) Filter() compiler.Dialect { return compiler.PostgresDialect{} }
func (d *PostgresDialect) NeedsBoolFix() bool       { return false }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) Configure(_ context.Context, db *sql.DB, poolSize int) error {
	if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
	}
	return nil
}

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = current_schema())`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema()`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) TimeValue(t time.Time) any { return t.UTC() }

func (d *PostgresDialect) InsertIgnore(table string, cols []string, values string) string {
	return onConflictDoNothing(table, cols, values)
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case "42P01":
			return fmt.Errorf("%w: %w", ErrUnknownTable, err)
		}
	}
	return err
}

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _confirmations (
    session_id     TEXT NOT NULL,
    expansion_hash TEXT NOT NULL,
    canonical_key  TEXT NOT NULL,
    expansion      TEXT NOT NULL,
    confirmed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
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
    duration_ms        DOUBLE PRECISION,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_events_created ON _audit_events (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_session ON _audit_events (session_id, created_at DESC);
`

// Compile-time check
var _ Dialect = (*PostgresDialect)(nil)
