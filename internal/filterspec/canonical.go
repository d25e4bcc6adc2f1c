package filterspec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Canonicalize returns a fresh tree in canonical form: literal values
// normalized, set-membership operands sorted and de-duplicated, and group
// children ordered by a stable serialization. The input is not modified and
// applying Canonicalize twice yields the same tree.
func Canonicalize(root *FilterGroup) *FilterGroup {
	if root == nil {
		return nil
	}
	return canonicalGroup(root)
}

func canonicalNode(n Node) Node {
	switch v := n.(type) {
	case *FilterCondition:
		return canonicalCondition(v)
	case *FilterGroup:
		return canonicalGroup(v)
	case *SemanticReference:
		c := *v
		c.SemanticKey = strings.TrimSpace(c.SemanticKey)
		c.TargetColumn = strings.TrimSpace(c.TargetColumn)
		return &c
	}
	return nil
}

func canonicalGroup(g *FilterGroup) *FilterGroup {
	out := &FilterGroup{Logic: g.Logic, Conditions: make([]Node, 0, len(g.Conditions))}
	for _, child := range g.Conditions {
		if c := canonicalNode(child); c != nil {
			out.Conditions = append(out.Conditions, c)
		}
	}
	keys := make(map[Node]sortKey, len(out.Conditions))
	for _, child := range out.Conditions {
		keys[child] = keyOf(child)
	}
	sort.SliceStable(out.Conditions, func(i, j int) bool {
		return keys[out.Conditions[i]].less(keys[out.Conditions[j]])
	})
	return out
}

func canonicalCondition(c *FilterCondition) *FilterCondition {
	out := &FilterCondition{Column: c.Column, Operator: c.Operator, Operands: make([]TypedLiteral, len(c.Operands))}
	for i, op := range c.Operands {
		out.Operands[i] = canonicalLiteral(op)
	}
	if c.Operator.IsSetMembership() {
		out.Operands = SortOperands(out.Operands)
	}
	return out
}

// canonicalLiteral rewrites numbers and dates to their canonical text so
// that 1.50 and 1.5 serialize identically. Invalid values are kept as-is
// for validation to reject.
func canonicalLiteral(l TypedLiteral) TypedLiteral {
	switch l.Type {
	case LiteralNumber:
		if r, ok := l.Rat(); ok {
			return TypedLiteral{Type: l.Type, Value: json.Number(ratText(r))}
		}
	case LiteralDate:
		if _, ok := l.Time(); ok {
			return TypedLiteral{Type: l.Type, Value: l.Text()}
		}
	}
	return l
}

// SortOperands sorts by type tag then value and drops duplicates.
func SortOperands(operands []TypedLiteral) []TypedLiteral {
	sorted := append([]TypedLiteral(nil), operands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return CompareLiterals(sorted[i], sorted[j]) < 0
	})
	out := sorted[:0]
	for i, op := range sorted {
		if i > 0 && CompareLiterals(out[len(out)-1], op) == 0 {
			continue
		}
		out = append(out, op)
	}
	return out
}

type sortKey struct {
	kind   int // conditions, then groups, then semantic references
	rank   int
	column string
	body   string
}

func (a sortKey) less(b sortKey) bool {
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	if a.column != b.column {
		return a.column < b.column
	}
	return a.body < b.body
}

func keyOf(n Node) sortKey {
	switch v := n.(type) {
	case *FilterCondition:
		return sortKey{kind: 0, rank: v.Operator.Rank(), column: v.Column, body: string(mustSerialize(v.Operands))}
	case *FilterGroup:
		return sortKey{kind: 1, body: string(mustSerialize(v))}
	case *SemanticReference:
		return sortKey{kind: 2, column: v.SemanticKey, body: v.TargetColumn}
	}
	return sortKey{kind: 3}
}

// Serialize returns the canonical JSON encoding of a node. Callers that need
// a stable form across equivalent inputs should canonicalize first.
func Serialize(n Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(n); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func mustSerialize(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// HashJSON returns the hex SHA-256 of the canonical JSON encoding of v.
func HashJSON(v any) string {
	sum := sha256.Sum256(mustSerialize(v))
	return hex.EncodeToString(sum[:])
}

// SpecHash binds a canonical tree to the schema and dictionary it was
// resolved against.
func SpecHash(root *FilterGroup, schemaSignature, dictionaryVersion string) string {
	return HashJSON(struct {
		Root              *FilterGroup `json:"root"`
		SchemaSignature   string       `json:"schema_signature"`
		DictionaryVersion string       `json:"dictionary_version"`
	}{Canonicalize(root), schemaSignature, dictionaryVersion})
}

// ExpansionHash identifies one Tier B expansion of a canonical key against a
// given schema and dictionary version.
func ExpansionHash(canonicalKey, dictionaryVersion, schemaSignature string, expansion Node) string {
	return HashJSON(struct {
		CanonicalKey      string `json:"canonical_key"`
		DictionaryVersion string `json:"dictionary_version"`
		SchemaSignature   string `json:"schema_signature"`
		Expansion         Node   `json:"expansion"`
	}{canonicalKey, dictionaryVersion, schemaSignature, canonicalNode(expansion)})
}

// IsHexHash reports whether s looks like a hex SHA-256 digest.
func IsHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// ContainsSemantic reports whether any semantic reference remains in the tree.
func ContainsSemantic(root *FilterGroup) bool {
	return Stats(root).Semantic > 0
}
