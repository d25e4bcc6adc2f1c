package compiler

import (
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/cast"

	"shipfilter/internal/filterspec"
)

// coerce converts a literal to the Go value bound for the referenced column.
// The result depends only on the literal and the column family, so the same
// input always yields the same parameter.
func coerce(d Dialect, ref filterspec.ColumnRef, lit filterspec.TypedLiteral) (any, error) {
	if err := lit.Validate(ref.Name); err != nil {
		return nil, err
	}
	switch ref.Family {
	case filterspec.FamilyString, filterspec.FamilyJSON:
		return lit.Text(), nil

	case filterspec.FamilyInteger:
		if r, ok := numericRat(lit); ok {
			if r.IsInt() && r.Num().IsInt64() {
				return r.Num().Int64(), nil
			}
			f, _ := r.Float64()
			return f, nil
		}
		return nil, mismatch(ref, lit, "an integer")

	case filterspec.FamilyNumber:
		if lit.Type == filterspec.LiteralBoolean || lit.Type == filterspec.LiteralDate {
			return nil, mismatch(ref, lit, "a number")
		}
		f, err := cast.ToFloat64E(plainValue(lit))
		if err != nil {
			return nil, mismatch(ref, lit, "a number")
		}
		return f, nil

	case filterspec.FamilyBoolean:
		if lit.Type == filterspec.LiteralDate {
			return nil, mismatch(ref, lit, "a boolean")
		}
		b, err := cast.ToBoolE(plainValue(lit))
		if err != nil {
			return nil, mismatch(ref, lit, "a boolean")
		}
		return b, nil

	case filterspec.FamilyDate, filterspec.FamilyTime:
		if lit.Type != filterspec.LiteralDate && lit.Type != filterspec.LiteralString {
			return nil, mismatch(ref, lit, "a date")
		}
		t, ok := filterspec.ParseDate(cast.ToString(lit.Value))
		if !ok {
			var err error
			t, err = cast.ToTimeInDefaultLocationE(lit.Value, time.UTC)
			if err != nil {
				return nil, mismatch(ref, lit, "a date")
			}
			t = t.UTC()
		}
		return d.TimeParam(t, ref.Family), nil
	}
	return naturalValue(lit), nil
}

// coerceNumericText converts an ordering operand for a money-like text
// column or JSON path, which are compared as numbers.
func coerceNumericText(ref filterspec.ColumnRef, lit filterspec.TypedLiteral) (float64, error) {
	if err := lit.Validate(ref.Name); err != nil {
		return 0, err
	}
	switch lit.Type {
	case filterspec.LiteralNumber:
		r, _ := lit.Rat()
		f, _ := r.Float64()
		return f, nil
	case filterspec.LiteralString:
		s := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(cast.ToString(lit.Value)))
		if s == "" {
			break
		}
		f, err := cast.ToFloat64E(s)
		if err == nil {
			return f, nil
		}
	}
	return 0, mismatch(ref, lit, "a numeric literal for ordering")
}

// numericRat reads an exact number from a number literal or a numeric string.
func numericRat(lit filterspec.TypedLiteral) (*big.Rat, bool) {
	switch lit.Type {
	case filterspec.LiteralNumber:
		return lit.Rat()
	case filterspec.LiteralString:
		s := strings.TrimSpace(cast.ToString(lit.Value))
		if s == "" {
			return nil, false
		}
		return new(big.Rat).SetString(s)
	}
	return nil, false
}

func plainValue(lit filterspec.TypedLiteral) any {
	if n, ok := lit.Value.(json.Number); ok {
		return string(n)
	}
	return lit.Value
}

// naturalValue is used for columns of unknown type.
func naturalValue(lit filterspec.TypedLiteral) any {
	switch lit.Type {
	case filterspec.LiteralNumber:
		r, _ := lit.Rat()
		if r.IsInt() && r.Num().IsInt64() {
			return r.Num().Int64()
		}
		f, _ := r.Float64()
		return f
	case filterspec.LiteralDate:
		return lit.Text()
	}
	return lit.Value
}

func mismatch(ref filterspec.ColumnRef, lit filterspec.TypedLiteral, want string) error {
	return filterspec.TypeMismatchError(ref.Name, "%s literal %q cannot be used as %s", lit.Type, lit.Text(), want)
}
