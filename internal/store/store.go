package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cast"

	_ "github.com/duckdb/duckdb-go/v2" // Register duckdb as database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	_ "modernc.org/sqlite"             // Register sqlite as database/sql driver

	"shipfilter/internal/config"
)

var (
	ErrUniqueViolation = errors.New("unique constraint violation")
	ErrUnknownTable    = errors.New("unknown table")
)

// Store is a database handle paired with the dialect that speaks to it.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// New opens the database described by cfg.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	return Open(ctx, cfg.Driver, cfg.DSN(), cfg.PoolSize)
}

// Open connects with an explicit driver and data source name and verifies
// the connection.
func Open(ctx context.Context, driver, dsn string, poolSize int) (*Store, error) {
	dialect, err := NewDialect(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name(), err)
	}
	if err := dialect.Configure(ctx, db, poolSize); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure %s: %w", dialect.Name(), err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name(), err)
	}
	return &Store{DB: db, Dialect: dialect}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// query runs a statement and collects every row keyed by column name.
func (s *Store) query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := s.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, s.Dialect.MapError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	cells := make([]any, len(columns))
	dest := make([]any, len(columns))
	for rows.Next() {
		for i := range cells {
			cells[i] = nil
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := cells[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = cells[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// exec runs a statement and reports the rows it touched.
func (s *Store) exec(ctx context.Context, sqlStr string, args ...any) (int64, error) {
	res, err := s.DB.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, s.Dialect.MapError(err)
	}
	return res.RowsAffected()
}

// fixBooleans turns the 0/1 integers SQLite stores for BOOLEAN columns back
// into bools. Values that do not convert are left alone.
func fixBooleans(rows []map[string]any, columns []string) {
	for _, row := range rows {
		for _, col := range columns {
			switch v := row[col].(type) {
			case nil, bool:
			default:
				if b, err := cast.ToBoolE(v); err == nil {
					row[col] = b
				}
			}
		}
	}
}
