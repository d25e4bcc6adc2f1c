package filterspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// LiteralType is the explicit type tag carried by every operand.
type LiteralType string

const (
	LiteralBoolean LiteralType = "boolean"
	LiteralDate    LiteralType = "date"
	LiteralNumber  LiteralType = "number"
	LiteralString  LiteralType = "string"
)

func (t LiteralType) Valid() bool {
	switch t {
	case LiteralBoolean, LiteralDate, LiteralNumber, LiteralString:
		return true
	}
	return false
}

// DateLayout is the accepted calendar-date form of a date literal. Date
// literals may also carry a full RFC 3339 timestamp.
const DateLayout = "2006-01-02"

// TypedLiteral is an operand value with an explicit type tag. Numbers are
// kept as json.Number so that no float rounding happens before coercion.
type TypedLiteral struct {
	Type  LiteralType `json:"type"`
	Value any         `json:"value"`
}

func String(s string) TypedLiteral { return TypedLiteral{Type: LiteralString, Value: s} }
func Bool(b bool) TypedLiteral     { return TypedLiteral{Type: LiteralBoolean, Value: b} }
func Date(s string) TypedLiteral   { return TypedLiteral{Type: LiteralDate, Value: s} }

func Int(n int64) TypedLiteral {
	return TypedLiteral{Type: LiteralNumber, Value: json.Number(strconv.FormatInt(n, 10))}
}

func Number(f float64) TypedLiteral {
	return TypedLiteral{Type: LiteralNumber, Value: json.Number(strconv.FormatFloat(f, 'f', -1, 64))}
}

// Strings builds a list of string literals, handy for set membership.
func Strings(values ...string) []TypedLiteral {
	out := make([]TypedLiteral, len(values))
	for i, v := range values {
		out[i] = String(v)
	}
	return out
}

func (l *TypedLiteral) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  LiteralType     `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.Type = raw.Type
	l.Value = nil
	if len(raw.Value) == 0 || bytes.Equal(bytes.TrimSpace(raw.Value), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw.Value))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	if l.Type == LiteralNumber {
		if s, ok := v.(string); ok {
			if _, ok := parseRat(strings.TrimSpace(s)); ok {
				v = json.Number(strings.TrimSpace(s))
			}
		}
	}
	l.Value = v
	return nil
}

// Validate checks that the value is present and agrees with its tag.
func (l TypedLiteral) Validate(column string) error {
	if !l.Type.Valid() {
		return TypeMismatchError(column, "unknown literal type %q", string(l.Type))
	}
	if l.Value == nil {
		return NewError(CodeMissingOperand, "column %q: %s operand has no value", column, l.Type)
	}
	switch l.Type {
	case LiteralString:
		if _, ok := l.Value.(string); !ok {
			return TypeMismatchError(column, "string literal holds %T", l.Value)
		}
	case LiteralBoolean:
		if _, ok := l.Value.(bool); !ok {
			return TypeMismatchError(column, "boolean literal holds %T", l.Value)
		}
	case LiteralNumber:
		if _, ok := l.Rat(); !ok {
			return TypeMismatchError(column, "number literal %v is not numeric", l.Value)
		}
	case LiteralDate:
		if _, ok := l.Time(); !ok {
			return TypeMismatchError(column, "date literal %v is not an ISO date", l.Value)
		}
	}
	return nil
}

// Rat returns the exact numeric value of a number literal.
func (l TypedLiteral) Rat() (*big.Rat, bool) {
	switch v := l.Value.(type) {
	case json.Number:
		return parseRat(string(v))
	case float64:
		return new(big.Rat).SetFloat64(v), true
	case int:
		return new(big.Rat).SetInt64(int64(v)), true
	case int64:
		return new(big.Rat).SetInt64(v), true
	}
	return nil, false
}

// Time parses a date literal as a calendar date or RFC 3339 timestamp (UTC).
func (l TypedLiteral) Time() (time.Time, bool) {
	s, ok := l.Value.(string)
	if !ok {
		return time.Time{}, false
	}
	return ParseDate(s)
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and normalizes to UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// Text returns the canonical textual form of the literal value. Equal
// values of the same type always produce equal text.
func (l TypedLiteral) Text() string {
	switch l.Type {
	case LiteralNumber:
		if r, ok := l.Rat(); ok {
			return ratText(r)
		}
	case LiteralDate:
		if t, ok := l.Time(); ok {
			if t.Equal(t.Truncate(24 * time.Hour)) {
				return t.Format(DateLayout)
			}
			return t.Format(time.RFC3339Nano)
		}
	case LiteralBoolean:
		if b, ok := l.Value.(bool); ok {
			return strconv.FormatBool(b)
		}
	}
	if s, ok := l.Value.(string); ok {
		return s
	}
	return fmt.Sprint(l.Value)
}

// CompareLiterals orders literals by type tag, then by value.
func CompareLiterals(a, b TypedLiteral) int {
	if a.Type != b.Type {
		return strings.Compare(string(a.Type), string(b.Type))
	}
	switch a.Type {
	case LiteralNumber:
		ra, okA := a.Rat()
		rb, okB := b.Rat()
		if okA && okB {
			if c := ra.Cmp(rb); c != 0 {
				return c
			}
		}
	case LiteralBoolean:
		ba, _ := a.Value.(bool)
		bb, _ := b.Value.(bool)
		if ba != bb {
			if !ba {
				return -1
			}
			return 1
		}
	case LiteralDate:
		ta, okA := a.Time()
		tb, okB := b.Time()
		if okA && okB {
			if c := ta.Compare(tb); c != 0 {
				return c
			}
		}
	}
	return strings.Compare(a.Text(), b.Text())
}

func parseRat(s string) (*big.Rat, bool) {
	if s == "" {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, false
	}
	return r, true
}

// ratText renders r as a plain decimal with the fewest digits that
// round-trip exactly.
func ratText(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}
	for prec := 1; prec <= 64; prec++ {
		s := r.FloatString(prec)
		if back, ok := parseRat(s); ok && back.Cmp(r) == 0 {
			return s
		}
	}
	return r.RatString()
}
