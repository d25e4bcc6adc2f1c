package filterspec

// Operator is a filter comparison operator. The set below is exhaustive;
// anything else is rejected with INVALID_OPERATOR.
type Operator string

const (
	OpEq           Operator = "eq"
	OpNeq          Operator = "neq"
	OpGt           Operator = "gt"
	OpGte          Operator = "gte"
	OpLt           Operator = "lt"
	OpLte          Operator = "lte"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpContainsCI   Operator = "contains_ci"
	OpStartsWithCI Operator = "starts_with_ci"
	OpEndsWithCI   Operator = "ends_with_ci"
	OpIsNull       Operator = "is_null"
	OpIsNotNull    Operator = "is_not_null"
	OpIsBlank      Operator = "is_blank"
	OpIsNotBlank   Operator = "is_not_blank"
	OpBetween      Operator = "between"
)

// VariadicArity marks set-membership operators, which take one or more operands.
const VariadicArity = -1

// Operators lists the allowlist in canonical order. The position of an
// operator in this slice is its sort rank during canonicalization.
var Operators = []Operator{
	OpEq, OpNeq,
	OpGt, OpGte, OpLt, OpLte,
	OpIn, OpNotIn,
	OpContainsCI, OpStartsWithCI, OpEndsWithCI,
	OpIsNull, OpIsNotNull, OpIsBlank, OpIsNotBlank,
	OpBetween,
}

var operatorArity = map[Operator]int{
	OpEq:           1,
	OpNeq:          1,
	OpGt:           1,
	OpGte:          1,
	OpLt:           1,
	OpLte:          1,
	OpIn:           VariadicArity,
	OpNotIn:        VariadicArity,
	OpContainsCI:   1,
	OpStartsWithCI: 1,
	OpEndsWithCI:   1,
	OpIsNull:       0,
	OpIsNotNull:    0,
	OpIsBlank:      0,
	OpIsNotBlank:   0,
	OpBetween:      2,
}

var operatorRank = func() map[Operator]int {
	m := make(map[Operator]int, len(Operators))
	for i, op := range Operators {
		m[op] = i
	}
	return m
}()

// Valid reports whether op is in the allowlist.
func (op Operator) Valid() bool {
	_, ok := operatorArity[op]
	return ok
}

// Arity returns the declared operand count, or VariadicArity for set membership.
func (op Operator) Arity() int {
	return operatorArity[op]
}

func (op Operator) Rank() int {
	if r, ok := operatorRank[op]; ok {
		return r
	}
	return len(Operators)
}

// IsSetMembership reports whether op is in or not_in.
func (op Operator) IsSetMembership() bool {
	return op == OpIn || op == OpNotIn
}

// IsOrdering reports whether op compares by order (including range).
func (op Operator) IsOrdering() bool {
	switch op {
	case OpGt, OpGte, OpLt, OpLte, OpBetween:
		return true
	}
	return false
}

// IsSubstring reports whether op is one of the case-insensitive pattern matches.
func (op Operator) IsSubstring() bool {
	switch op {
	case OpContainsCI, OpStartsWithCI, OpEndsWithCI:
		return true
	}
	return false
}

// CheckArity validates operand count against the operator's declared arity.
func CheckArity(op Operator, column string, count int) error {
	if !op.Valid() {
		return NewError(CodeInvalidOperator, "operator %q is not allowed", string(op))
	}
	arity := op.Arity()
	if arity == VariadicArity {
		if count == 0 {
			return NewError(CodeEmptyInList, "operator %q on %q has no values", string(op), column)
		}
		return nil
	}
	if count != arity {
		return NewError(CodeInvalidArity, "operator %q on %q requires exactly %d operand(s), got %d",
			string(op), column, arity, count)
	}
	return nil
}
