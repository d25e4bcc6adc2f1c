package filterspec

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeKind names the three variants of the condition tree.
type NodeKind string

const (
	KindCondition NodeKind = "condition"
	KindGroup     NodeKind = "group"
	KindSemantic  NodeKind = "semantic"
)

// Node is a sealed union: only *FilterCondition, *FilterGroup and
// *SemanticReference implement it. Consumers match it with a type switch.
type Node interface {
	Kind() NodeKind
	sealed()
}

// Logic joins the children of a group.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

func (l Logic) Valid() bool { return l == LogicAnd || l == LogicOr }

// FilterCondition is a direct column filter.
type FilterCondition struct {
	Column   string         `json:"column"`
	Operator Operator       `json:"operator"`
	Operands []TypedLiteral `json:"operands"`
}

// SemanticReference is an unresolved canonical term. It never reaches the compiler.
type SemanticReference struct {
	SemanticKey  string `json:"semantic_key"`
	TargetColumn string `json:"target_column,omitempty"`
}

// FilterGroup joins child nodes with AND or OR.
type FilterGroup struct {
	Logic      Logic  `json:"logic"`
	Conditions []Node `json:"conditions"`
}

func (*FilterCondition) Kind() NodeKind   { return KindCondition }
func (*FilterGroup) Kind() NodeKind       { return KindGroup }
func (*SemanticReference) Kind() NodeKind { return KindSemantic }

func (*FilterCondition) sealed()   {}
func (*FilterGroup) sealed()       {}
func (*SemanticReference) sealed() {}

// And and Or build groups; they are mostly used by tests and the dictionary.
func And(children ...Node) *FilterGroup { return &FilterGroup{Logic: LogicAnd, Conditions: children} }
func Or(children ...Node) *FilterGroup  { return &FilterGroup{Logic: LogicOr, Conditions: children} }

// Cond builds a condition.
func Cond(column string, op Operator, operands ...TypedLiteral) *FilterCondition {
	return &FilterCondition{Column: column, Operator: op, Operands: operands}
}

// Ref builds a semantic reference.
func Ref(key, targetColumn string) *SemanticReference {
	return &SemanticReference{SemanticKey: key, TargetColumn: targetColumn}
}

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	switch v := n.(type) {
	case *FilterCondition:
		return v.Clone()
	case *FilterGroup:
		return v.Clone()
	case *SemanticReference:
		c := *v
		return &c
	}
	return nil
}

func (c *FilterCondition) Clone() *FilterCondition {
	out := *c
	out.Operands = append([]TypedLiteral(nil), c.Operands...)
	return &out
}

func (g *FilterGroup) Clone() *FilterGroup {
	out := &FilterGroup{Logic: g.Logic, Conditions: make([]Node, len(g.Conditions))}
	for i, child := range g.Conditions {
		out.Conditions[i] = Clone(child)
	}
	return out
}

func (c *FilterCondition) MarshalJSON() ([]byte, error) {
	type alias FilterCondition
	operands := c.Operands
	if operands == nil {
		operands = []TypedLiteral{}
	}
	return json.Marshal(struct {
		Kind NodeKind `json:"kind"`
		alias
	}{KindCondition, alias{Column: c.Column, Operator: c.Operator, Operands: operands}})
}

func (r *SemanticReference) MarshalJSON() ([]byte, error) {
	type alias SemanticReference
	return json.Marshal(struct {
		Kind NodeKind `json:"kind"`
		alias
	}{KindSemantic, alias(*r)})
}

func (g *FilterGroup) MarshalJSON() ([]byte, error) {
	children := g.Conditions
	if children == nil {
		children = []Node{}
	}
	return json.Marshal(struct {
		Kind       NodeKind `json:"kind"`
		Logic      Logic    `json:"logic"`
		Conditions []Node   `json:"conditions"`
	}{KindGroup, g.Logic, children})
}

func (g *FilterGroup) UnmarshalJSON(data []byte) error {
	var raw struct {
		Logic      string            `json:"logic"`
		Conditions []json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.Logic = Logic(strings.ToUpper(strings.TrimSpace(raw.Logic)))
	g.Conditions = make([]Node, 0, len(raw.Conditions))
	for i, msg := range raw.Conditions {
		n, err := DecodeNode(msg)
		if err != nil {
			return fmt.Errorf("conditions[%d]: %w", i, err)
		}
		g.Conditions = append(g.Conditions, n)
	}
	return nil
}

// DecodeNode decodes one tree node. The variant is chosen by the optional
// "kind" field, or by shape when kind is absent.
func DecodeNode(data []byte) (Node, error) {
	var probe struct {
		Kind        NodeKind        `json:"kind"`
		SemanticKey *string         `json:"semantic_key"`
		Logic       *string         `json:"logic"`
		Column      *string         `json:"column"`
		Conditions  json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	kind := probe.Kind
	if kind == "" {
		switch {
		case probe.SemanticKey != nil:
			kind = KindSemantic
		case probe.Logic != nil || probe.Conditions != nil:
			kind = KindGroup
		case probe.Column != nil:
			kind = KindCondition
		default:
			return nil, fmt.Errorf("cannot determine node kind")
		}
	}
	switch kind {
	case KindCondition:
		var c FilterCondition
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return &c, nil
	case KindGroup:
		var g FilterGroup
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, err
		}
		return &g, nil
	case KindSemantic:
		var r SemanticReference
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return &r, nil
	}
	return nil, fmt.Errorf("unknown node kind %q", kind)
}
