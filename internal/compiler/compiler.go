// Package compiler turns a fully resolved condition tree into parameterized
// SQL. Literal values only ever travel in the parameter list.
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"shipfilter/internal/filterspec"
)

// Compiler is stateless and safe for concurrent use.
type Compiler struct {
	dialect Dialect
	limits  filterspec.Limits
}

func New(dialect Dialect, limits filterspec.Limits) *Compiler {
	if dialect == nil {
		dialect = DuckDBDialect{}
	}
	return &Compiler{dialect: dialect, limits: limits}
}

func (c *Compiler) Dialect() Dialect { return c.dialect }

// Compile checks that spec is resolved and current, canonicalizes its tree
// and emits the WHERE-clause body. schema is the live schema; its signature
// is recomputed from the columns so a stale snapshot cannot slip through.
func (c *Compiler) Compile(spec *filterspec.ResolvedFilterSpec, schema filterspec.Snapshot) (*filterspec.CompiledFilter, error) {
	if spec == nil || spec.Status != filterspec.StatusResolved {
		status := filterspec.Status("")
		if spec != nil {
			status = spec.Status
		}
		return nil, filterspec.NewError(filterspec.CodeConfirmationRequired, "spec status is %q; only RESOLVED specs compile", status)
	}
	runtime := filterspec.SchemaSignature(schema.Columns)
	if (schema.Signature != "" && schema.Signature != runtime) || spec.SchemaSignature != runtime {
		return nil, filterspec.NewError(filterspec.CodeSchemaChanged,
			"spec was resolved against schema %s but the live schema is %s", short(spec.SchemaSignature), short(runtime))
	}
	root := spec.Root
	if root == nil {
		root = filterspec.And()
	}
	if err := c.limits.Check(root); err != nil {
		return nil, err
	}
	if filterspec.ContainsSemantic(root) {
		return nil, filterspec.NewError(filterspec.CodeConfirmationRequired, "spec still holds unresolved semantic references")
	}

	canon := filterspec.Canonicalize(root)
	e := &emitter{
		dialect: c.dialect,
		schema:  schema,
		pb:      c.dialect.NewParamBuilder(),
		columns: make(map[string]struct{}),
	}
	query, err := e.group(canon)
	if err != nil {
		return nil, err
	}
	if limit := c.maxParams(); e.pb.Count() > limit {
		return nil, filterspec.StructuralLimitError("compiled filter binds %d parameters, limit %d", e.pb.Count(), limit)
	}

	params := e.pb.Params()
	if params == nil {
		params = []any{}
	}
	out := &filterspec.CompiledFilter{
		QueryText:         query,
		Params:            params,
		ColumnsUsed:       e.columnsUsed(),
		Explanation:       filterspec.Explain(canon),
		SchemaSignature:   runtime,
		DictionaryVersion: spec.DictionaryVersion,
		Dialect:           c.dialect.Name(),
		SpecHash:          filterspec.SpecHash(canon, runtime, spec.DictionaryVersion),
	}
	out.CompiledHash = CompiledHash(out)
	return out, nil
}

func (c *Compiler) maxParams() int {
	if c.limits.MaxParams > 0 {
		return c.limits.MaxParams
	}
	return filterspec.DefaultLimits().MaxParams
}

// CompiledHash fingerprints the artifact for audit logging.
func CompiledHash(f *filterspec.CompiledFilter) string {
	return filterspec.HashJSON(struct {
		QueryText         string `json:"query_text"`
		Params            []any  `json:"params"`
		SchemaSignature   string `json:"schema_signature"`
		DictionaryVersion string `json:"dictionary_version"`
		Dialect           string `json:"dialect"`
	}{f.QueryText, f.Params, f.SchemaSignature, f.DictionaryVersion, f.Dialect})
}

type emitter struct {
	dialect Dialect
	schema  filterspec.Snapshot
	pb      ParamBuilder
	columns map[string]struct{}
}

func (e *emitter) group(g *filterspec.FilterGroup) (string, error) {
	if !g.Logic.Valid() {
		return "", filterspec.NewError(filterspec.CodeInvalidOperator, "group logic %q must be AND or OR", string(g.Logic))
	}
	if len(g.Conditions) == 0 {
		return "", filterspec.StructuralLimitError("filter group has no conditions")
	}
	fragments := make([]string, 0, len(g.Conditions))
	for _, child := range g.Conditions {
		switch v := child.(type) {
		case *filterspec.FilterCondition:
			frag, err := e.condition(v)
			if err != nil {
				return "", err
			}
			fragments = append(fragments, frag)
		case *filterspec.FilterGroup:
			frag, err := e.group(v)
			if err != nil {
				return "", err
			}
			fragments = append(fragments, "("+frag+")")
		case *filterspec.SemanticReference:
			return "", filterspec.NewError(filterspec.CodeConfirmationRequired,
				"semantic reference %q reached the compiler", v.SemanticKey)
		default:
			return "", fmt.Errorf("compile: unexpected node %T", child)
		}
	}
	return strings.Join(fragments, " "+string(g.Logic)+" "), nil
}

func (e *emitter) condition(cond *filterspec.FilterCondition) (string, error) {
	ref, err := filterspec.ValidateCondition(cond, e.schema)
	if err != nil {
		return "", err
	}
	e.columns[ref.Base] = struct{}{}

	col := e.dialect.QuoteIdent(ref.Base)
	if ref.IsJSONPath() {
		col = e.dialect.JSONText(ref.Base, ref.Path)
	}
	ops := cond.Operands

	switch op := cond.Operator; op {
	case filterspec.OpEq:
		ph, err := e.bind(ref, ops[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", col, ph), nil

	case filterspec.OpNeq:
		ph, err := e.bind(ref, ops[0])
		if err != nil {
			return "", err
		}
		return e.dialect.DistinctFrom(col, ph), nil

	case filterspec.OpGt, filterspec.OpGte, filterspec.OpLt, filterspec.OpLte:
		target, ph, err := e.ordering(ref, col, ops[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", target, orderingSymbol[op], ph), nil

	case filterspec.OpBetween:
		target, lo, err := e.ordering(ref, col, ops[0])
		if err != nil {
			return "", err
		}
		_, hi, err := e.ordering(ref, col, ops[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", target, lo, hi), nil

	case filterspec.OpIn, filterspec.OpNotIn:
		// Literals of different tags can coerce to the same parameter.
		placeholders := make([]string, 0, len(ops))
		seen := make(map[string]struct{}, len(ops))
		for _, lit := range ops {
			v, err := coerce(e.dialect, ref, lit)
			if err != nil {
				return "", err
			}
			key := fmt.Sprintf("%T:%v", v, v)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			placeholders = append(placeholders, e.pb.Add(v))
		}
		list := strings.Join(placeholders, ", ")
		if op == filterspec.OpIn {
			return fmt.Sprintf("%s IN (%s)", col, list), nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", col, col, list), nil

	case filterspec.OpContainsCI, filterspec.OpStartsWithCI, filterspec.OpEndsWithCI:
		if err := ops[0].Validate(ref.Name); err != nil {
			return "", err
		}
		escaped := EscapeLike(ops[0].Text())
		switch op {
		case filterspec.OpContainsCI:
			escaped = "%" + escaped + "%"
		case filterspec.OpStartsWithCI:
			escaped = escaped + "%"
		default:
			escaped = "%" + escaped
		}
		return e.dialect.ILike(col, e.pb.Add(escaped)), nil

	case filterspec.OpIsNull:
		return col + " IS NULL", nil
	case filterspec.OpIsNotNull:
		return col + " IS NOT NULL", nil

	case filterspec.OpIsBlank, filterspec.OpIsNotBlank:
		blank := fmt.Sprintf("COALESCE(TRIM(CAST(%s AS %s)), '')", col, e.dialect.TextType())
		cmp := "="
		if op == filterspec.OpIsNotBlank {
			cmp = "<>"
		}
		return fmt.Sprintf("%s %s %s", blank, cmp, e.pb.Add("")), nil
	}
	return "", filterspec.NewError(filterspec.CodeInvalidOperator, "operator %q is not allowed", string(cond.Operator))
}

var orderingSymbol = map[filterspec.Operator]string{
	filterspec.OpGt:  ">",
	filterspec.OpGte: ">=",
	filterspec.OpLt:  "<",
	filterspec.OpLte: "<=",
}

func (e *emitter) bind(ref filterspec.ColumnRef, lit filterspec.TypedLiteral) (string, error) {
	v, err := coerce(e.dialect, ref, lit)
	if err != nil {
		return "", err
	}
	return e.pb.Add(v), nil
}

// ordering returns the comparison target and a bound operand. Money-like
// text and JSON paths compare numerically.
func (e *emitter) ordering(ref filterspec.ColumnRef, col string, lit filterspec.TypedLiteral) (string, string, error) {
	if ref.NumericText() {
		f, err := coerceNumericText(ref, lit)
		if err != nil {
			return "", "", err
		}
		return e.dialect.NumericText(col), e.pb.Add(f), nil
	}
	ph, err := e.bind(ref, lit)
	if err != nil {
		return "", "", err
	}
	return col, ph, nil
}

func (e *emitter) columnsUsed() []string {
	out := make([]string, 0, len(e.columns))
	for col := range e.columns {
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}

// EscapeLike escapes LIKE metacharacters with backslash.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func short(sig string) string {
	if len(sig) > 12 {
		return sig[:12]
	}
	return sig
}
