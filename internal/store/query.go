package store

import (
	"context"
	"fmt"
	"regexp"

	"shipfilter/internal/compiler"
	"shipfilter/internal/filterspec"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Introspect reads the live column set of a table and computes its schema
// signature.
func (s *Store) Introspect(ctx context.Context, table string) (filterspec.Snapshot, error) {
	if !tableName.MatchString(table) {
		return filterspec.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	exists, err := s.Dialect.TableExists(ctx, s.DB, table)
	if err != nil {
		return filterspec.Snapshot{}, fmt.Errorf("introspect %s: %w", table, s.Dialect.MapError(err))
	}
	if !exists {
		return filterspec.Snapshot{}, fmt.Errorf("%w: %q does not exist in the %s database", ErrUnknownTable, table, s.Dialect.Name())
	}
	cols, err := s.Dialect.GetColumns(ctx, s.DB, table)
	if err != nil {
		return filterspec.Snapshot{}, fmt.Errorf("introspect %s: %w", table, s.Dialect.MapError(err))
	}
	if len(cols) == 0 {
		return filterspec.Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return filterspec.NewSnapshot(cols), nil
}

// Query is a compiled filter bound to the table and schema it runs against.
type Query struct {
	Table  string
	Schema filterspec.Snapshot
	Filter *filterspec.CompiledFilter
	Limit  int
}

// Execute runs SELECT * FROM table WHERE <filter> LIMIT n. The filter must
// have been compiled for this engine against the given schema; its
// parameters are bound positionally and the limit takes the next slot.
func (s *Store) Execute(ctx context.Context, q Query) ([]map[string]any, error) {
	f := q.Filter
	if f == nil {
		return nil, fmt.Errorf("execute: no compiled filter")
	}
	if !tableName.MatchString(q.Table) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, q.Table)
	}
	dialect := s.Dialect.Filter()
	if f.Dialect != dialect.Name() {
		return nil, fmt.Errorf("execute: filter compiled for %s, store speaks %s", f.Dialect, dialect.Name())
	}
	if f.SchemaSignature != q.Schema.Signature {
		return nil, filterspec.NewError(filterspec.CodeSchemaChanged, "compiled filter does not match the schema of %s", q.Table)
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("execute: limit must be positive")
	}

	pb := dialect.NewParamBuilder()
	for _, p := range f.Params {
		pb.Add(p)
	}
	limit := pb.Add(q.Limit)
	sqlStr := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT %s", dialect.QuoteIdent(q.Table), f.QueryText, limit)

	rows, err := s.query(ctx, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("execute filter on %s: %w", q.Table, err)
	}
	if s.Dialect.NeedsBoolFix() {
		fixBooleans(rows, boolColumns(q.Schema))
	}
	return rows, nil
}

func boolColumns(schema filterspec.Snapshot) []string {
	var out []string
	for name, typ := range schema.Columns {
		if filterspec.Family(typ) == filterspec.FamilyBoolean {
			out = append(out, name)
		}
	}
	return out
}

// FilterDialect is the compiler dialect matching this store's engine.
func (s *Store) FilterDialect() compiler.Dialect { return s.Dialect.Filter() }
