package dictionary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipfilter/internal/filterspec"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "thenortheast", Normalize("The North-East"))
	assert.Equal(t, "thenortheast", Normalize("  the   northeast "))
	assert.Equal(t, "2nddayair", Normalize("2nd Day Air"))
	assert.Equal(t, "strasse", Normalize("STRASSE"))
}

func TestTierClassification(t *testing.T) {
	d := Default()
	assert.Equal(t, Version, d.Version())

	assert.Equal(t, filterspec.TierA, d.Tier("New York"))
	assert.Equal(t, filterspec.TierA, d.Tier("ups ground"))
	assert.Equal(t, filterspec.TierB, d.Tier("the Northeast"))
	assert.Equal(t, filterspec.TierB, d.Tier("business_recipient"))
	assert.Equal(t, filterspec.TierB, d.Tier("heavy packages"))
	assert.Equal(t, filterspec.TierC, d.Tier("the south"))
	assert.Equal(t, filterspec.TierC, d.Tier("big orders"))
	assert.Equal(t, filterspec.TierC, d.Tier("purple monkeys"))
}

func TestEveryTierAExpandsToEquality(t *testing.T) {
	for _, e := range Default().Entries() {
		switch e.Tier {
		case filterspec.TierA:
			cond, err := e.Expand("col")
			require.NoError(t, err, e.Key)
			assert.Equal(t, filterspec.OpEq, cond.Operator, e.Key)
			assert.Len(t, cond.Operands, 1, e.Key)
		case filterspec.TierB:
			_, err := e.Expand("col")
			require.NoError(t, err, e.Key)
		case filterspec.TierC:
			_, err := e.Expand("col")
			assert.Equal(t, filterspec.CodeUnknownCanonicalTerm, filterspec.CodeOf(err), e.Key)
		}
	}
}

func TestRegionExpansion(t *testing.T) {
	e, ok := Default().Lookup("northeast")
	require.True(t, ok)
	cond, err := e.Expand("state")
	require.NoError(t, err)
	assert.Equal(t, filterspec.OpIn, cond.Operator)
	assert.Len(t, cond.Operands, 9)
	assert.Equal(t, "NORTHEAST (9 states: CT, MA, ME, NH, NJ, NY, PA, RI, VT)", e.Description)

	cond.Operands[0] = filterspec.String("XX")
	again, _ := e.Expand("state")
	assert.NotEqual(t, "XX", again.Operands[0].Value, "expansions must not share storage")
}

func TestResolveTarget(t *testing.T) {
	d := Default()
	biz, _ := d.Entry("BUSINESS_RECIPIENT")

	col, err := d.ResolveTarget(biz, "", filterspec.NewSnapshot(map[string]string{"company": "VARCHAR", "ship_to_company": "VARCHAR"}))
	require.NoError(t, err)
	assert.Equal(t, "company", col, "exact match wins over synonyms")

	col, err = d.ResolveTarget(biz, "", filterspec.NewSnapshot(map[string]string{"ship_to_company": "VARCHAR", "state": "VARCHAR"}))
	require.NoError(t, err)
	assert.Equal(t, "ship_to_company", col)

	_, err = d.ResolveTarget(biz, "", filterspec.NewSnapshot(map[string]string{"company_name": "VARCHAR", "business_name": "VARCHAR"}))
	assert.Equal(t, filterspec.CodeAmbiguousTerm, filterspec.CodeOf(err))
	var fe *filterspec.Error
	require.ErrorAs(t, err, &fe)
	assert.Len(t, fe.Details, 2)

	_, err = d.ResolveTarget(biz, "", filterspec.NewSnapshot(map[string]string{"state": "VARCHAR"}))
	assert.Equal(t, filterspec.CodeMissingTargetColumn, filterspec.CodeOf(err))

	col, err = d.ResolveTarget(biz, "state", filterspec.NewSnapshot(map[string]string{"state": "VARCHAR"}))
	require.NoError(t, err)
	assert.Equal(t, "state", col)

	_, err = d.ResolveTarget(biz, "nope", filterspec.NewSnapshot(map[string]string{"state": "VARCHAR"}))
	assert.Equal(t, filterspec.CodeUnknownColumn, filterspec.CodeOf(err))

	heavy, _ := d.Entry("HEAVY_PACKAGE")
	col, err = d.ResolveTarget(heavy, "", filterspec.NewSnapshot(map[string]string{"package_weight_kg": "DOUBLE"}))
	require.NoError(t, err)
	assert.Equal(t, "package_weight_kg", col, "substring match is the last resort")
}

func TestSuggestIsDeterministic(t *testing.T) {
	d := Default()
	first := d.Suggest("the south")
	require.Len(t, first, MaxSuggestions)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, d.Suggest("the south"))
	}
	for _, s := range first {
		assert.NotEqual(t, filterspec.TierC, s.Tier)
	}

	got := d.Suggest("northeest")
	assert.Equal(t, "NORTHEAST", got[0].Key)
}

func TestNewRejectsCollisions(t *testing.T) {
	_, err := New("v", []Entry{
		{Key: "A", Aliases: []string{"the-thing"}},
		{Key: "B", Aliases: []string{"The Thing"}},
	})
	assert.Error(t, err)

	_, err = New("v", []Entry{{Key: "A"}, {Key: "A"}})
	assert.Error(t, err)
}
