// Package preview evaluates a resolved condition tree against in-memory rows
// so matches can be shown before anything reaches the database.
//
// The tree is compiled into an expr-lang program whose text only ever
// contains generated identifiers (c0, v0, ...). Column names and literal
// values travel in the program environment, so identical tree shapes share
// one cached program.
package preview

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"shipfilter/internal/filterspec"
)

// Row is a single record keyed by column name.
type Row = map[string]any

// Evaluator compiles condition trees into expr-lang programs. Compiled
// programs are cached by program text.
type Evaluator struct {
	limits filterspec.Limits

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewEvaluator(limits filterspec.Limits) *Evaluator {
	return &Evaluator{
		limits: limits,
		cache:  make(map[string]*vm.Program),
	}
}

// Evaluate returns the rows matched by root, in input order.
func (e *Evaluator) Evaluate(root *filterspec.FilterGroup, rows []Row) ([]Row, error) {
	prog, env, err := e.prepare(root)
	if err != nil {
		return nil, err
	}
	matched := make([]Row, 0, len(rows))
	for _, row := range rows {
		env["row"] = row
		ok, err := run(prog, env)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

// Program returns the generated program text and its bindings.
func (e *Evaluator) Program(root *filterspec.FilterGroup) (string, map[string]any, error) {
	if root == nil {
		root = filterspec.And()
	}
	if err := e.limits.Check(root); err != nil {
		return "", nil, err
	}
	b := &builder{env: make(map[string]any)}
	text, err := b.group(filterspec.Canonicalize(root))
	if err != nil {
		return "", nil, err
	}
	return text, b.env, nil
}

func (e *Evaluator) prepare(root *filterspec.FilterGroup) (*vm.Program, map[string]any, error) {
	text, env, err := e.Program(root)
	if err != nil {
		return nil, nil, err
	}
	prog, err := e.compile(text)
	if err != nil {
		return nil, nil, err
	}
	return prog, env, nil
}

func (e *Evaluator) compile(text string) (*vm.Program, error) {
	e.mu.RLock()
	prog, ok := e.cache[text]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}
	opts := append([]expr.Option{expr.AsBool()}, functions...)
	prog, err := expr.Compile(text, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile preview program: %w", err)
	}
	e.mu.Lock()
	e.cache[text] = prog
	e.mu.Unlock()
	return prog, nil
}

func run(prog *vm.Program, env map[string]any) (bool, error) {
	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate preview program: %w", err)
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("preview program did not return bool")
	}
	return ok, nil
}

type builder struct {
	env     map[string]any
	columns int
	values  int
}

func (b *builder) column(name string) string {
	id := "c" + strconv.Itoa(b.columns)
	b.columns++
	b.env[id] = name
	return "field(row, " + id + ")"
}

func (b *builder) value(v any) string {
	id := "v" + strconv.Itoa(b.values)
	b.values++
	b.env[id] = v
	return id
}

func (b *builder) group(g *filterspec.FilterGroup) (string, error) {
	var join string
	switch g.Logic {
	case filterspec.LogicAnd:
		join = " && "
	case filterspec.LogicOr:
		join = " || "
	default:
		return "", filterspec.NewError(filterspec.CodeInvalidOperator, "group logic %q must be AND or OR", string(g.Logic))
	}
	if len(g.Conditions) == 0 {
		return "", filterspec.StructuralLimitError("filter group has no conditions")
	}
	parts := make([]string, 0, len(g.Conditions))
	for _, child := range g.Conditions {
		switch v := child.(type) {
		case *filterspec.FilterCondition:
			part, err := b.condition(v)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		case *filterspec.FilterGroup:
			part, err := b.group(v)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+part+")")
		case *filterspec.SemanticReference:
			return "", filterspec.NewError(filterspec.CodeConfirmationRequired,
				"semantic reference %q must be resolved before preview", v.SemanticKey)
		default:
			return "", fmt.Errorf("preview: unexpected node %T", child)
		}
	}
	return strings.Join(parts, join), nil
}

var callName = map[filterspec.Operator]string{
	filterspec.OpEq:           "eq",
	filterspec.OpNeq:          "neq",
	filterspec.OpGt:           "gt",
	filterspec.OpGte:          "gte",
	filterspec.OpLt:           "lt",
	filterspec.OpLte:          "lte",
	filterspec.OpIn:           "inSet",
	filterspec.OpNotIn:        "notInSet",
	filterspec.OpContainsCI:   "containsCI",
	filterspec.OpStartsWithCI: "startsWithCI",
	filterspec.OpEndsWithCI:   "endsWithCI",
	filterspec.OpIsNull:       "isNull",
	filterspec.OpIsNotNull:    "isNotNull",
	filterspec.OpIsBlank:      "isBlank",
	filterspec.OpIsNotBlank:   "isNotBlank",
	filterspec.OpBetween:      "between",
}

func (b *builder) condition(c *filterspec.FilterCondition) (string, error) {
	fn, ok := callName[c.Operator]
	if !ok {
		return "", filterspec.NewError(filterspec.CodeInvalidOperator, "operator %q is not allowed", string(c.Operator))
	}
	if err := filterspec.CheckArity(c.Operator, c.Column, len(c.Operands)); err != nil {
		return "", err
	}
	values := make([]any, len(c.Operands))
	for i, lit := range c.Operands {
		if err := lit.Validate(c.Column); err != nil {
			return "", err
		}
		values[i] = literalValue(lit)
	}

	args := []string{b.column(c.Column)}
	switch {
	case c.Operator.IsSetMembership():
		args = append(args, b.value(values))
	default:
		for _, v := range values {
			args = append(args, b.value(v))
		}
	}
	return fn + "(" + strings.Join(args, ", ") + ")", nil
}
