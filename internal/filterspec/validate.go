package filterspec

// ValidateCondition checks a condition against the schema: the column must
// exist, the operator must be allowlisted, the operand count must match the
// arity, every operand must be well-formed, and the operator must suit the
// column type. Columns of unknown type skip the type check.
func ValidateCondition(c *FilterCondition, schema Snapshot) (ColumnRef, error) {
	ref, err := schema.Lookup(c.Column)
	if err != nil {
		return ColumnRef{}, err
	}
	if err := CheckArity(c.Operator, c.Column, len(c.Operands)); err != nil {
		return ColumnRef{}, err
	}
	for _, op := range c.Operands {
		if err := op.Validate(c.Column); err != nil {
			return ColumnRef{}, err
		}
	}
	if err := checkOperatorType(ref, c.Operator); err != nil {
		return ColumnRef{}, err
	}
	return ref, nil
}

func checkOperatorType(ref ColumnRef, op Operator) error {
	if ref.Family == FamilyUnknown {
		return nil
	}
	switch {
	case op.IsOrdering():
		if ref.Family.Orderable() || ref.NumericText() {
			return nil
		}
		return TypeMismatchError(ref.Name, "operator %q requires a numeric or date column, got %s", string(op), ref.Family)
	case op.IsSubstring():
		if ref.Family == FamilyString {
			return nil
		}
		return TypeMismatchError(ref.Name, "operator %q requires a string column, got %s", string(op), ref.Family)
	}
	return nil
}
