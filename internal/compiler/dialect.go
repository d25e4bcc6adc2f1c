package compiler

import (
	"fmt"
	"strings"
	"time"

	"shipfilter/internal/filterspec"
)

// Dialect abstracts engine-specific SQL generation for filter fragments.
type Dialect interface {
	// Name returns "duckdb", "postgres" or "sqlite".
	Name() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// QuoteIdent quotes a column name as an identifier.
	QuoteIdent(name string) string

	// TextType is the type blank checks cast a column to.
	TextType() string

	// DistinctFrom builds a null-aware inequality.
	DistinctFrom(col, placeholder string) string

	// ILike builds a case-insensitive pattern match with '\' declared as
	// the escape character.
	ILike(col, placeholder string) string

	// NumericText casts money-like text ("$1,234.50") to a number, yielding
	// NULL where the text is not numeric.
	NumericText(expr string) string

	// JSONText extracts a key path from a JSON column as text. Path
	// segments are already restricted to [A-Za-z0-9_-].
	JSONText(base string, path []string) string

	// TimeParam encodes a date or timestamp operand for the driver.
	TimeParam(t time.Time, family filterspec.TypeFamily) any
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// DefaultDialect is used when no dialect is configured.
const DefaultDialect = "duckdb"

// LookupDialect returns the dialect with the given name.
func LookupDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "duckdb":
		return DuckDBDialect{}, nil
	case "postgres", "postgresql", "pgx":
		return PostgresDialect{}, nil
	case "sqlite", "sqlite3":
		return SQLiteDialect{}, nil
	}
	return nil, fmt.Errorf("unknown SQL dialect %q", name)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func stripMoney(expr string) string {
	return fmt.Sprintf("REPLACE(REPLACE(TRIM(COALESCE(%s, '')), '$', ''), ',', '')", expr)
}

// --- dollar-numbered placeholders (DuckDB, PostgreSQL) ---

type dollarParamBuilder struct {
	params []any
	n      int
}

func (p *dollarParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *dollarParamBuilder) Params() []any { return p.params }
func (p *dollarParamBuilder) Count() int    { return p.n }

// --- question-numbered placeholders (SQLite) ---

type questionParamBuilder struct {
	params []any
	n      int
}

func (p *questionParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("?%d", p.n)
}

func (p *questionParamBuilder) Params() []any { return p.params }
func (p *questionParamBuilder) Count() int    { return p.n }

// DuckDBDialect is the default target engine.
type DuckDBDialect struct{}

func (DuckDBDialect) Name() string                  { return "duckdb" }
func (DuckDBDialect) NewParamBuilder() ParamBuilder { return &dollarParamBuilder{} }
func (DuckDBDialect) QuoteIdent(name string) string { return quoteIdent(name) }
func (DuckDBDialect) TextType() string              { return "VARCHAR" }

func (DuckDBDialect) DistinctFrom(col, ph string) string {
	return fmt.Sprintf("%s IS DISTINCT FROM %s", col, ph)
}

func (DuckDBDialect) ILike(col, ph string) string {
	return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, col, ph)
}

func (DuckDBDialect) NumericText(expr string) string {
	return fmt.Sprintf("TRY_CAST(%s AS DOUBLE)", stripMoney(expr))
}

func (DuckDBDialect) JSONText(base string, path []string) string {
	return fmt.Sprintf(`json_extract_string(%s, '$.%s')`, quoteIdent(base), jsonPathKeys(path))
}

func (DuckDBDialect) TimeParam(t time.Time, _ filterspec.TypeFamily) any { return t }

// PostgresDialect targets PostgreSQL through pgx.
type PostgresDialect struct{}

func (PostgresDialect) Name() string                  { return "postgres" }
func (PostgresDialect) NewParamBuilder() ParamBuilder { return &dollarParamBuilder{} }
func (PostgresDialect) QuoteIdent(name string) string { return quoteIdent(name) }
func (PostgresDialect) TextType() string              { return "TEXT" }

func (PostgresDialect) DistinctFrom(col, ph string) string {
	return fmt.Sprintf("%s IS DISTINCT FROM %s", col, ph)
}

func (PostgresDialect) ILike(col, ph string) string {
	return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, col, ph)
}

func (PostgresDialect) NumericText(expr string) string {
	s := stripMoney(expr)
	return fmt.Sprintf(`(CASE WHEN %s ~ '^-?[0-9]+(\.[0-9]+)?$' THEN CAST(%s AS DOUBLE PRECISION) END)`, s, s)
}

func (PostgresDialect) JSONText(base string, path []string) string {
	return fmt.Sprintf("(CAST(%s AS JSONB) #>> '{%s}')", quoteIdent(base), strings.Join(path, ","))
}

func (PostgresDialect) TimeParam(t time.Time, _ filterspec.TypeFamily) any { return t }

// SQLiteDialect targets modernc.org/sqlite. SQLite has no ILIKE and stores
// dates as text, so both are emulated.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string                  { return "sqlite" }
func (SQLiteDialect) NewParamBuilder() ParamBuilder { return &questionParamBuilder{} }
func (SQLiteDialect) QuoteIdent(name string) string { return quoteIdent(name) }
func (SQLiteDialect) TextType() string              { return "TEXT" }

func (SQLiteDialect) DistinctFrom(col, ph string) string {
	return fmt.Sprintf("%s IS NOT %s", col, ph)
}

func (SQLiteDialect) ILike(col, ph string) string {
	return fmt.Sprintf(`LOWER(%s) LIKE LOWER(%s) ESCAPE '\'`, col, ph)
}

func (SQLiteDialect) NumericText(expr string) string {
	s := stripMoney(expr)
	return fmt.Sprintf("(CASE WHEN %s GLOB '*[0-9]*' AND %s NOT GLOB '*[^0-9.-]*' THEN CAST(%s AS REAL) END)", s, s, s)
}

func (SQLiteDialect) JSONText(base string, path []string) string {
	return fmt.Sprintf(`json_extract(%s, '$.%s')`, quoteIdent(base), jsonPathKeys(path))
}

func (SQLiteDialect) TimeParam(t time.Time, family filterspec.TypeFamily) any {
	if family == filterspec.FamilyDate {
		return t.Format(filterspec.DateLayout)
	}
	return t.Format("2006-01-02 15:04:05")
}

// jsonPathKeys renders segments as quoted JSONPath keys: a.b-c -> "a"."b-c".
func jsonPathKeys(path []string) string {
	keys := make([]string, len(path))
	for i, seg := range path {
		keys[i] = `"` + seg + `"`
	}
	return strings.Join(keys, ".")
}
