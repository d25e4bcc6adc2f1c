package filterspec

// Limits bound the size of a condition tree.
type Limits struct {
	MaxDepth         int `mapstructure:"max_depth" json:"max_depth"`
	MaxConditions    int `mapstructure:"max_conditions" json:"max_conditions"`
	MaxParams        int `mapstructure:"max_params" json:"max_params"`
	MaxInCardinality int `mapstructure:"max_in_cardinality" json:"max_in_cardinality"`
}

// DefaultLimits returns depth 4, 50 conditions, 500 parameters and 100
// values per set-membership condition. The root group sits at depth 0.
func DefaultLimits() Limits {
	return Limits{MaxDepth: 4, MaxConditions: 50, MaxParams: 500, MaxInCardinality: 100}
}

// orDefault fills zero fields from DefaultLimits.
func (l Limits) orDefault() Limits {
	d := DefaultLimits()
	if l.MaxDepth <= 0 {
		l.MaxDepth = d.MaxDepth
	}
	if l.MaxConditions <= 0 {
		l.MaxConditions = d.MaxConditions
	}
	if l.MaxParams <= 0 {
		l.MaxParams = d.MaxParams
	}
	if l.MaxInCardinality <= 0 {
		l.MaxInCardinality = d.MaxInCardinality
	}
	return l
}

// TreeStats summarizes a tree for the structural guard.
type TreeStats struct {
	Depth      int // deepest group, root = 0
	Conditions int // leaves: conditions and semantic references
	Params     int // operands across all conditions
	MaxSetSize int
	Semantic   int
}

// Stats walks the tree once.
func Stats(root *FilterGroup) TreeStats {
	var st TreeStats
	var walk func(n Node, depth int)
	walk = func(n Node, depth int) {
		switch v := n.(type) {
		case *FilterGroup:
			if depth > st.Depth {
				st.Depth = depth
			}
			for _, child := range v.Conditions {
				walk(child, depth+1)
			}
		case *FilterCondition:
			st.Conditions++
			st.Params += len(v.Operands)
			if v.Operator.IsSetMembership() && len(v.Operands) > st.MaxSetSize {
				st.MaxSetSize = len(v.Operands)
			}
		case *SemanticReference:
			st.Conditions++
			st.Semantic++
		}
	}
	if root != nil {
		walk(root, 0)
	}
	return st
}

// CheckShape enforces depth and condition count. The resolver applies it to
// intents, before expansion adds parameters.
func (l Limits) CheckShape(root *FilterGroup) error {
	l = l.orDefault()
	st := Stats(root)
	if st.Depth > l.MaxDepth {
		return StructuralLimitError("nesting depth %d exceeds limit %d", st.Depth, l.MaxDepth)
	}
	if st.Conditions > l.MaxConditions {
		return StructuralLimitError("condition count %d exceeds limit %d", st.Conditions, l.MaxConditions)
	}
	return nil
}

// Check enforces every limit.
func (l Limits) Check(root *FilterGroup) error {
	if err := l.CheckShape(root); err != nil {
		return err
	}
	l = l.orDefault()
	st := Stats(root)
	if st.MaxSetSize > l.MaxInCardinality {
		return StructuralLimitError("set membership has %d values, limit %d", st.MaxSetSize, l.MaxInCardinality)
	}
	if st.Params > l.MaxParams {
		return StructuralLimitError("parameter count %d exceeds limit %d", st.Params, l.MaxParams)
	}
	return nil
}
