package filterspec

import (
	"fmt"
	"strings"
)

// Explain renders a human-readable description of a tree by walking it
// recursively. Callers pass the canonical tree that produced (or will
// produce) the query so grouping is reflected faithfully. Nested groups with
// more than one child are parenthesized; the root group is not.
func Explain(root *FilterGroup) string {
	if root == nil {
		return "No filter conditions."
	}
	text := explainGroup(root, true)
	if text == "" {
		return "No filter conditions."
	}
	return "Filter: " + text + "."
}

func explainNode(n Node) string {
	switch v := n.(type) {
	case *FilterCondition:
		return ConditionLabel(v)
	case *FilterGroup:
		return explainGroup(v, false)
	case *SemanticReference:
		return fmt.Sprintf("[unresolved term %q]", v.SemanticKey)
	}
	return ""
}

func explainGroup(g *FilterGroup, root bool) string {
	parts := make([]string, 0, len(g.Conditions))
	for _, child := range g.Conditions {
		if s := explainNode(child); s != "" {
			parts = append(parts, s)
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	inner := strings.Join(parts, " "+string(g.Logic)+" ")
	if root {
		return inner
	}
	return "(" + inner + ")"
}

// ConditionLabel describes a single condition.
func ConditionLabel(c *FilterCondition) string {
	col := c.Column
	first := func() string {
		if len(c.Operands) == 0 {
			return "?"
		}
		return c.Operands[0].Text()
	}
	switch c.Operator {
	case OpEq:
		return fmt.Sprintf("%s equals %s", col, first())
	case OpNeq:
		return fmt.Sprintf("%s not equal to %s", col, first())
	case OpGt:
		return fmt.Sprintf("%s greater than %s", col, first())
	case OpGte:
		return fmt.Sprintf("%s >= %s", col, first())
	case OpLt:
		return fmt.Sprintf("%s less than %s", col, first())
	case OpLte:
		return fmt.Sprintf("%s <= %s", col, first())
	case OpIn, OpNotIn:
		sorted := SortOperands(c.Operands)
		values := make([]string, 0, len(sorted))
		seen := make(map[string]struct{}, len(sorted))
		for _, op := range sorted {
			text := op.Text()
			if _, dup := seen[text]; dup {
				continue
			}
			seen[text] = struct{}{}
			values = append(values, text)
		}
		verb := "in"
		if c.Operator == OpNotIn {
			verb = "not in"
		}
		return fmt.Sprintf("%s %s [%s]", col, verb, strings.Join(values, ", "))
	case OpContainsCI:
		return fmt.Sprintf("%s contains '%s' (case-insensitive)", col, first())
	case OpStartsWithCI:
		return fmt.Sprintf("%s starts with '%s' (case-insensitive)", col, first())
	case OpEndsWithCI:
		return fmt.Sprintf("%s ends with '%s' (case-insensitive)", col, first())
	case OpIsNull:
		return col + " is null"
	case OpIsNotNull:
		return col + " is not null"
	case OpIsBlank:
		return col + " is blank (null or empty)"
	case OpIsNotBlank:
		return col + " is not blank"
	case OpBetween:
		second := "?"
		if len(c.Operands) > 1 {
			second = c.Operands[1].Text()
		}
		return fmt.Sprintf("%s between %s and %s", col, first(), second)
	}
	return fmt.Sprintf("%s %s ...", col, c.Operator)
}
