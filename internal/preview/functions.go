package preview

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/spf13/cast"

	"shipfilter/internal/filterspec"
)

// Comparison helpers follow SQL null semantics: a NULL cell never matches a
// comparison, except for the null-aware neq and not_in.
var functions = []expr.Option{
	expr.Function("field", func(p ...any) (any, error) {
		row, _ := p[0].(Row)
		return field(row, cast.ToString(p[1])), nil
	}, new(func(any, any) any)),

	binary("eq", func(a, b any) bool { c, ok := compare(a, b); return ok && c == 0 }),
	binary("neq", func(a, b any) bool {
		if a == nil {
			return true
		}
		c, ok := compare(a, b)
		return !ok || c != 0
	}),
	binary("gt", ordered(func(c int) bool { return c > 0 })),
	binary("gte", ordered(func(c int) bool { return c >= 0 })),
	binary("lt", ordered(func(c int) bool { return c < 0 })),
	binary("lte", ordered(func(c int) bool { return c <= 0 })),

	binary("inSet", func(a, set any) bool { return a != nil && member(a, set) }),
	binary("notInSet", func(a, set any) bool { return a == nil || !member(a, set) }),

	binary("containsCI", fold(strings.Contains)),
	binary("startsWithCI", fold(strings.HasPrefix)),
	binary("endsWithCI", fold(strings.HasSuffix)),

	unary("isNull", func(a any) bool { return a == nil }),
	unary("isNotNull", func(a any) bool { return a != nil }),
	unary("isBlank", blank),
	unary("isNotBlank", func(a any) bool { return !blank(a) }),

	expr.Function("between", func(p ...any) (any, error) {
		lo, ok1 := order(p[0], p[1])
		hi, ok2 := order(p[0], p[2])
		return ok1 && ok2 && lo >= 0 && hi <= 0, nil
	}, new(func(any, any, any) bool)),
}

func unary(name string, fn func(any) bool) expr.Option {
	return expr.Function(name, func(p ...any) (any, error) {
		return fn(p[0]), nil
	}, new(func(any) bool))
}

func binary(name string, fn func(a, b any) bool) expr.Option {
	return expr.Function(name, func(p ...any) (any, error) {
		return fn(p[0], p[1]), nil
	}, new(func(any, any) bool))
}

func ordered(test func(int) bool) func(a, b any) bool {
	return func(a, b any) bool {
		c, ok := order(a, b)
		return ok && test(c)
	}
}

// order is compare for ordering operators: a numeric literal, including
// money-like text, compares numerically and non-numeric cells never match.
func order(cell, lit any) (int, bool) {
	if cell == nil {
		return 0, false
	}
	if _, isTime := lit.(time.Time); !isTime {
		if y, ok := number(lit); ok {
			x, ok := number(cell)
			if !ok {
				return 0, false
			}
			return cmpFloat(x, y), true
		}
	}
	return compare(cell, lit)
}

func fold(match func(s, sub string) bool) func(a, b any) bool {
	return func(a, b any) bool {
		if a == nil {
			return false
		}
		s, err := cast.ToStringE(a)
		if err != nil {
			return false
		}
		return match(strings.ToLower(s), strings.ToLower(cast.ToString(b)))
	}
}

func member(a, set any) bool {
	values, _ := set.([]any)
	for _, v := range values {
		if c, ok := compare(a, v); ok && c == 0 {
			return true
		}
	}
	return false
}

func blank(a any) bool {
	if a == nil {
		return true
	}
	s, err := cast.ToStringE(a)
	return err == nil && strings.TrimSpace(s) == ""
}

// literalValue converts a literal to the value the helpers compare against.
func literalValue(lit filterspec.TypedLiteral) any {
	switch lit.Type {
	case filterspec.LiteralNumber:
		r, _ := lit.Rat()
		f, _ := r.Float64()
		return f
	case filterspec.LiteralDate:
		t, _ := lit.Time()
		return t
	}
	return lit.Value
}

// compare orders a cell against a literal, converting the cell to the
// literal's kind. ok is false when the cell cannot be converted.
func compare(cell, lit any) (int, bool) {
	if cell == nil || lit == nil {
		return 0, false
	}
	switch l := lit.(type) {
	case float64:
		f, ok := number(cell)
		if !ok {
			return 0, false
		}
		return cmpFloat(f, l), true
	case bool:
		b, err := cast.ToBoolE(cell)
		if err != nil {
			return 0, false
		}
		if b == l {
			return 0, true
		}
		if !b {
			return -1, true
		}
		return 1, true
	case time.Time:
		t, ok := instant(cell)
		if !ok {
			return 0, false
		}
		return t.Compare(l), true
	case string:
		if f, ok := cell.(float64); ok {
			if n, ok := number(l); ok {
				return cmpFloat(f, n), true
			}
		}
		s, err := cast.ToStringE(cell)
		if err != nil {
			return 0, false
		}
		return strings.Compare(s, l), true
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// number reads numeric cells, including money-like text such as "$1,200.50".
func number(v any) (float64, bool) {
	switch x := v.(type) {
	case bool:
		return 0, false
	case string:
		s := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(x))
		f, err := cast.ToFloat64E(s)
		return f, err == nil && s != ""
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

func instant(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		if t, ok := filterspec.ParseDate(s); ok {
			return t, true
		}
	}
	t, err := cast.ToTimeInDefaultLocationE(v, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// field reads a column, or a key path inside a JSON column written as
// base.key.key. JSON columns may hold decoded maps or raw JSON text.
func field(row Row, name string) any {
	if row == nil {
		return nil
	}
	if v, ok := row[name]; ok {
		return v
	}
	base, rest, found := strings.Cut(name, ".")
	if !found {
		return nil
	}
	cur := row[base]
	for _, seg := range strings.Split(rest, ".") {
		switch v := cur.(type) {
		case string:
			var decoded map[string]any
			if err := json.Unmarshal([]byte(v), &decoded); err != nil {
				return nil
			}
			cur = decoded[seg]
		case []byte:
			var decoded map[string]any
			if err := json.Unmarshal(v, &decoded); err != nil {
				return nil
			}
			cur = decoded[seg]
		case map[string]any:
			cur = v[seg]
		default:
			return nil
		}
	}
	return cur
}
