package filterspec

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioTree() *FilterGroup {
	return And(
		Cond("state", OpIn, Strings("NY", "MA", "CT", "PA", "NJ", "ME")...),
		Cond("company", OpIsNotBlank),
	)
}

func TestExplainScenario(t *testing.T) {
	got := Explain(Canonicalize(scenarioTree()))
	assert.Equal(t, "Filter: state in [CT, MA, ME, NJ, NY, PA] AND company is not blank.", got)
}

func TestExplainNestedGroups(t *testing.T) {
	tree := And(
		Or(Cond("state", OpEq, String("NY")), Cond("state", OpEq, String("NJ"))),
		Or(Cond("weight", OpGt, Int(5)), Cond("weight", OpIsNull)),
	)
	got := Explain(Canonicalize(tree))
	assert.Equal(t, "Filter: (state equals NJ OR state equals NY) AND (weight greater than 5 OR weight is null).", got)
}

func TestExplainEmpty(t *testing.T) {
	assert.Equal(t, "No filter conditions.", Explain(And()))
	assert.Equal(t, "No filter conditions.", Explain(nil))
}

func TestCanonicalizeSortsAndDedupes(t *testing.T) {
	tree := And(
		Cond("zip", OpNotIn, Number(2.50), Int(10), String("a"), Number(2.5), Bool(true)),
	)
	canon := Canonicalize(tree)
	cond := canon.Conditions[0].(*FilterCondition)
	want := []TypedLiteral{Bool(true), {Type: LiteralNumber, Value: json.Number("2.5")}, Int(10), String("a")}
	if diff := cmp.Diff(want, cond.Operands); diff != "" {
		t.Fatalf("operands mismatch (-want +got):\n%s", diff)
	}
}

func TestCanonicalizeIsIdempotentAndPure(t *testing.T) {
	tree := And(
		Cond("company", OpIsNotBlank),
		Or(Cond("b", OpEq, Int(1)), Cond("a", OpEq, Int(2))),
		Cond("state", OpIn, Strings("NY", "MA")...),
	)
	before, err := Serialize(tree)
	require.NoError(t, err)

	once := Canonicalize(tree)
	twice := Canonicalize(once)
	a, _ := Serialize(once)
	b, _ := Serialize(twice)
	assert.Equal(t, string(a), string(b))

	after, _ := Serialize(tree)
	assert.Equal(t, string(before), string(after), "input tree must not be mutated")

	_, isCond := once.Conditions[0].(*FilterCondition)
	_, isGroup := once.Conditions[2].(*FilterGroup)
	assert.True(t, isCond)
	assert.True(t, isGroup)
	assert.Equal(t, OpIn, once.Conditions[0].(*FilterCondition).Operator)
}

func TestSpecHashIgnoresChildOrder(t *testing.T) {
	a := And(Cond("company", OpIsNotBlank), Cond("state", OpIn, Strings("NY", "MA")...))
	b := And(Cond("state", OpIn, Strings("MA", "NY", "MA")...), Cond("company", OpIsNotBlank))
	assert.Equal(t, SpecHash(a, "sig", "v1"), SpecHash(b, "sig", "v1"))
	assert.NotEqual(t, SpecHash(a, "sig", "v1"), SpecHash(a, "sig2", "v1"))
	assert.True(t, IsHexHash(SpecHash(a, "sig", "v1")))
}

func TestDecodeNodeByKindAndShape(t *testing.T) {
	raw := `{"logic":"and","conditions":[
		{"column":"state","operator":"in","operands":[{"type":"string","value":"NY"}]},
		{"semantic_key":"the northeast","target_column":"state"},
		{"kind":"group","logic":"OR","conditions":[{"kind":"condition","column":"weight","operator":"gt","operands":[{"type":"number","value":70}]}]}
	]}`
	var g FilterGroup
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	assert.Equal(t, LogicAnd, g.Logic)
	require.Len(t, g.Conditions, 3)
	assert.Equal(t, KindCondition, g.Conditions[0].Kind())
	assert.Equal(t, KindSemantic, g.Conditions[1].Kind())
	inner := g.Conditions[2].(*FilterGroup)
	assert.Equal(t, LogicOr, inner.Logic)
	weight := inner.Conditions[0].(*FilterCondition)
	assert.Equal(t, json.Number("70"), weight.Operands[0].Value)

	out, err := Serialize(&g)
	require.NoError(t, err)
	var back FilterGroup
	require.NoError(t, json.Unmarshal(out, &back))
	if diff := cmp.Diff(&g, &back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeNodeRejectsUnknownShape(t *testing.T) {
	_, err := DecodeNode([]byte(`{"foo":1}`))
	assert.Error(t, err)
	_, err = DecodeNode([]byte(`{"kind":"bogus"}`))
	assert.Error(t, err)
}

func TestCheckArityForEveryOperator(t *testing.T) {
	for _, op := range Operators {
		arity := op.Arity()
		if arity == VariadicArity {
			assert.NoError(t, CheckArity(op, "c", 3), op)
			assert.Equal(t, CodeEmptyInList, CodeOf(CheckArity(op, "c", 0)), op)
			continue
		}
		assert.NoError(t, CheckArity(op, "c", arity), op)
		assert.Equal(t, CodeInvalidArity, CodeOf(CheckArity(op, "c", arity+1)), op)
	}
	assert.Equal(t, CodeInvalidOperator, CodeOf(CheckArity("like", "c", 1)))
	assert.Len(t, Operators, 16)
}

func TestLiteralValidation(t *testing.T) {
	assert.NoError(t, Date("2024-03-01").Validate("d"))
	assert.NoError(t, Date("2024-03-01T10:00:00Z").Validate("d"))
	assert.Equal(t, CodeTypeMismatch, CodeOf(Date("March 1").Validate("d")))
	assert.Equal(t, CodeTypeMismatch, CodeOf(TypedLiteral{Type: LiteralNumber, Value: "ten"}.Validate("n")))
	assert.Equal(t, CodeTypeMismatch, CodeOf(TypedLiteral{Type: LiteralBoolean, Value: "yes"}.Validate("b")))
	assert.Equal(t, CodeTypeMismatch, CodeOf(TypedLiteral{Type: "uuid", Value: "x"}.Validate("b")))
	assert.Equal(t, CodeMissingOperand, CodeOf(TypedLiteral{Type: LiteralString}.Validate("s")))

	var l TypedLiteral
	require.NoError(t, json.Unmarshal([]byte(`{"type":"number","value":"12.50"}`), &l))
	assert.Equal(t, "12.5", l.Text())
	require.NoError(t, json.Unmarshal([]byte(`{"type":"string","value":null}`), &l))
	assert.Nil(t, l.Value)
}

func TestCompareLiteralsNumericNotLexicographic(t *testing.T) {
	assert.Negative(t, CompareLiterals(Int(9), Int(10)))
	assert.Positive(t, CompareLiterals(String("9"), String("10")))
	assert.Negative(t, CompareLiterals(Bool(false), Bool(true)))
	assert.Negative(t, CompareLiterals(Date("2024-01-02"), Date("2024-01-10")))
}

func TestSchemaSignatureIsOrderIndependent(t *testing.T) {
	a := SchemaSignature(map[string]string{"state": "VARCHAR", "weight": "double"})
	b := SchemaSignature(map[string]string{"weight": "DOUBLE", "state": "varchar"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, SchemaSignature(map[string]string{"state": "VARCHAR"}))
}

func TestSnapshotLookup(t *testing.T) {
	s := NewSnapshot(map[string]string{
		"state":             "VARCHAR",
		"custom_attributes": "JSON",
		"weight":            "DOUBLE",
		"order_total":       "VARCHAR",
	})

	ref, err := s.Lookup("custom_attributes.gift-message")
	require.NoError(t, err)
	assert.Equal(t, "custom_attributes", ref.Base)
	assert.Equal(t, []string{"gift-message"}, ref.Path)
	assert.True(t, ref.NumericText())

	_, err = s.Lookup("custom_attributes.gift message")
	assert.Equal(t, CodeUnknownColumn, CodeOf(err))
	_, err = s.Lookup("weight.kg")
	assert.Equal(t, CodeUnknownColumn, CodeOf(err))
	_, err = s.Lookup("nope")
	assert.Equal(t, CodeUnknownColumn, CodeOf(err))

	ref, err = s.Lookup("order_total")
	require.NoError(t, err)
	assert.True(t, ref.NumericText())
	ref, _ = s.Lookup("state")
	assert.False(t, ref.NumericText())
}

func TestValidateConditionTypeCompat(t *testing.T) {
	s := NewSnapshot(map[string]string{"state": "VARCHAR", "weight": "DOUBLE", "flag": "BOOLEAN", "misc": ""})

	_, err := ValidateCondition(Cond("state", OpGt, String("A")), s)
	assert.Equal(t, CodeTypeMismatch, CodeOf(err))
	_, err = ValidateCondition(Cond("weight", OpContainsCI, String("1")), s)
	assert.Equal(t, CodeTypeMismatch, CodeOf(err))
	_, err = ValidateCondition(Cond("flag", OpBetween, Int(0), Int(1)), s)
	assert.Equal(t, CodeTypeMismatch, CodeOf(err))
	_, err = ValidateCondition(Cond("misc", OpGt, Int(1)), s)
	assert.NoError(t, err)
	_, err = ValidateCondition(Cond("weight", OpBetween, Int(1)), s)
	assert.Equal(t, CodeInvalidArity, CodeOf(err))
	_, err = ValidateCondition(Cond("weight", OpIn), s)
	assert.Equal(t, CodeEmptyInList, CodeOf(err))
	_, err = ValidateCondition(Cond("nope", OpIsNull), s)
	assert.Equal(t, CodeUnknownColumn, CodeOf(err))
}

func TestLimits(t *testing.T) {
	l := DefaultLimits()
	deep := And(Cond("a", OpIsNull))
	for i := 0; i < 4; i++ {
		deep = And(deep)
	}
	assert.NoError(t, l.Check(deep))
	assert.Equal(t, CodeStructuralLimit, CodeOf(l.Check(And(deep))))

	wide := And()
	for i := 0; i < 51; i++ {
		wide.Conditions = append(wide.Conditions, Cond("a", OpIsNull))
	}
	assert.Equal(t, CodeStructuralLimit, CodeOf(l.Check(wide)))

	values := make([]string, 101)
	for i := range values {
		values[i] = string(rune('a' + i%26))
	}
	big := And(Cond("a", OpIn, Strings(values...)...))
	assert.Equal(t, CodeStructuralLimit, CodeOf(l.Check(big)))
}

func TestStatusPrecedence(t *testing.T) {
	assert.Equal(t, StatusUnresolved, Worse(StatusNeedsConfirmation, StatusUnresolved))
	assert.Equal(t, StatusUnresolved, Worse(StatusUnresolved, StatusNeedsConfirmation))
	assert.Equal(t, StatusNeedsConfirmation, Worse(StatusResolved, StatusNeedsConfirmation))
	assert.Equal(t, StatusResolved, Worse("", StatusResolved))
}
