package filterspec

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// Snapshot is the live schema supplied fresh on every resolve or compile call.
type Snapshot struct {
	Columns   map[string]string `json:"columns"` // column name -> declared type
	Signature string            `json:"schema_signature"`
}

// NewSnapshot builds a snapshot and computes its signature.
func NewSnapshot(columnTypes map[string]string) Snapshot {
	cols := make(map[string]string, len(columnTypes))
	for name, typ := range columnTypes {
		cols[name] = typ
	}
	return Snapshot{Columns: cols, Signature: SchemaSignature(cols)}
}

// SchemaSignature hashes the sorted column names and upper-cased types.
func SchemaSignature(columnTypes map[string]string) string {
	names := make([]string, 0, len(columnTypes))
	for name := range columnTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(strings.ToUpper(strings.TrimSpace(columnTypes[name]))))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s Snapshot) Has(column string) bool {
	_, ok := s.Columns[column]
	return ok
}

// ColumnNames returns the schema columns in sorted order.
func (s Snapshot) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeFamily is the coarse class of a declared column type.
type TypeFamily string

const (
	FamilyUnknown TypeFamily = "unknown"
	FamilyString  TypeFamily = "string"
	FamilyInteger TypeFamily = "integer"
	FamilyNumber  TypeFamily = "number"
	FamilyBoolean TypeFamily = "boolean"
	FamilyDate    TypeFamily = "date"
	FamilyTime    TypeFamily = "timestamp"
	FamilyJSON    TypeFamily = "json"
)

// Family classifies a DuckDB, PostgreSQL or SQLite type name.
// Parameterized forms such as DECIMAL(10,2) or VARCHAR(255) are accepted.
func Family(declared string) TypeFamily {
	t := strings.ToUpper(strings.TrimSpace(declared))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch t {
	case "":
		return FamilyUnknown
	case "VARCHAR", "TEXT", "STRING", "CHAR", "BPCHAR", "CHARACTER", "CHARACTER VARYING", "UUID", "NAME", "CLOB":
		return FamilyString
	case "TINYINT", "SMALLINT", "INTEGER", "INT", "INT2", "INT4", "INT8", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "SERIAL", "BIGSERIAL":
		return FamilyInteger
	case "DOUBLE", "DOUBLE PRECISION", "FLOAT", "FLOAT4", "FLOAT8", "REAL", "DECIMAL", "NUMERIC":
		return FamilyNumber
	case "BOOLEAN", "BOOL":
		return FamilyBoolean
	case "DATE":
		return FamilyDate
	case "TIMESTAMP", "TIMESTAMPTZ", "DATETIME", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITHOUT TIME ZONE":
		return FamilyTime
	case "JSON", "JSONB":
		return FamilyJSON
	}
	return FamilyUnknown
}

// Orderable reports whether ordering operators apply to the family.
func (f TypeFamily) Orderable() bool {
	switch f {
	case FamilyInteger, FamilyNumber, FamilyDate, FamilyTime:
		return true
	}
	return false
}

// numericTextHints mark string columns that hold money-like numbers.
var numericTextHints = []string{
	"amount", "price", "total", "subtotal", "cost", "value", "tax", "discount", "balance",
}

var jsonPathSegment = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ColumnRef is a resolved column reference: either a plain schema column or
// a key path inside a JSON-bearing column.
type ColumnRef struct {
	Name   string     // as written in the condition
	Base   string     // schema column
	Path   []string   // JSON key segments; empty for plain columns
	Family TypeFamily // family of the referenced value
}

func (r ColumnRef) IsJSONPath() bool { return len(r.Path) > 0 }

// NumericText reports whether ordering comparisons should cast the column
// text to a number: JSON paths and string columns with money-like names.
func (r ColumnRef) NumericText() bool {
	if r.IsJSONPath() {
		return true
	}
	if r.Family != FamilyString {
		return false
	}
	lowered := strings.ToLower(r.Base)
	for _, hint := range numericTextHints {
		if strings.Contains(lowered, hint) {
			return true
		}
	}
	return false
}

// Lookup resolves a column name against the schema. A name that exists
// verbatim wins; otherwise "base.key.key" addresses a JSON path inside a
// JSON or string column named base. Anything else is UNKNOWN_COLUMN.
func (s Snapshot) Lookup(name string) (ColumnRef, error) {
	if typ, ok := s.Columns[name]; ok {
		return ColumnRef{Name: name, Base: name, Family: Family(typ)}, nil
	}
	base, rest, found := strings.Cut(name, ".")
	if !found || rest == "" {
		return ColumnRef{}, UnknownColumnError(name)
	}
	typ, ok := s.Columns[base]
	if !ok {
		return ColumnRef{}, UnknownColumnError(name)
	}
	switch Family(typ) {
	case FamilyJSON, FamilyString, FamilyUnknown:
	default:
		return ColumnRef{}, UnknownColumnError(name)
	}
	segments := strings.Split(rest, ".")
	for _, seg := range segments {
		if !jsonPathSegment.MatchString(seg) {
			return ColumnRef{}, NewError(CodeUnknownColumn, "column %q has an invalid JSON key %q", name, seg)
		}
	}
	return ColumnRef{Name: name, Base: base, Path: segments, Family: FamilyString}, nil
}
