package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"shipfilter/internal/compiler"
)

// DuckDBDialect implements Dialect for DuckDB via duckdb-go.
type DuckDBDialect struct{}

func (d *DuckDBDialect) Name() string             { return "duckdb" }
func (d *DuckDBDialect) DriverName() string       { return "duckdb" }
func (d *DuckDBDialect) Filter() compiler.Dialect { return compiler.DuckDBDialect{} }
func (d *DuckDBDialect) NeedsBoolFix() bool       { return false }

func (d *DuckDBDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *DuckDBDialect) Configure(_ context.Context, db *sql.DB, poolSize int) error {
	if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
	}
	return nil
}

func (d *DuckDBDialect) SystemTablesSQL() string {
	return duckdbSystemTablesSQL
}

func (d *DuckDBDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1 AND table_schema = current_schema()`,
		tableName,
	).Scan(&n)
	return n > 0, err
}

func (d *DuckDBDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
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

func (d *DuckDBDialect) TimeValue(t time.Time) any { return t.UTC() }

func (d *DuckDBDialect) InsertIgnore(table string, cols []string, values string) string {
	return onConflictDoNothing(table, cols, values)
}

func (d *DuckDBDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "Constraint Error") && strings.Contains(errStr, "primary key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	if strings.Contains(errStr, "Catalog Error") && strings.Contains(errStr, "does not exist") {
		return fmt.Errorf("%w: %w", ErrUnknownTable, err)
	}
	return err
}

const duckdbSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _confirmations (
    session_id     VARCHAR NOT NULL,
    expansion_hash VARCHAR NOT NULL,
    canonical_key  VARCHAR NOT NULL,
    expansion      VARCHAR NOT NULL,
    confirmed_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (session_id, expansion_hash)
);

CREATE TABLE IF NOT EXISTS _audit_events (
    id                 VARCHAR PRIMARY KEY,
    session_id         VARCHAR,
    action             VARCHAR NOT NULL,
    status             VARCHAR NOT NULL,
    code               VARCHAR,
    spec_hash          VARCHAR,
    compiled_hash      VARCHAR,
    schema_signature   VARCHAR,
    dictionary_version VARCHAR,
    dialect            VARCHAR,
    row_count          BIGINT,
    duration_ms        DOUBLE,
    created_at         TIMESTAMPTZ NOT NULL
);
`

// Compile-time check
var _ Dialect = (*DuckDBDialect)(nil)
