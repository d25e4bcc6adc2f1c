package store

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipfilter/internal/audit"
	"shipfilter/internal/compiler"
	fs "shipfilter/internal/filterspec"
)

const shipmentsDDL = `CREATE TABLE shipments (
    id                INTEGER PRIMARY KEY,
    state             TEXT,
    company           TEXT,
    weight            REAL,
    order_total       TEXT,
    residential       BOOLEAN,
    ship_date         DATE,
    custom_attributes JSON
)`

var shipmentRows = [][]any{
	{1, "NY", "Acme Corp", 72.5, "$1,200.00", 0, "2024-03-05", `{"gift-message":"happy birthday"}`},
	{2, "MA", "  ", 0.5, "$45.00", 1, "2024-02-01", `{}`},
	{3, "TX", nil, 12.0, "n/a", 1, nil, nil},
	{4, nil, "50% Off Deals", 3.0, "980", 0, "2024-04-10", `{"gift-message":""}`},
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "test.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Bootstrap(ctx))

	_, err = s.DB.ExecContext(ctx, shipmentsDDL)
	require.NoError(t, err)
	for _, r := range shipmentRows {
		_, err := s.DB.ExecContext(ctx,
			`INSERT INTO shipments (id, state, company, weight, order_total, residential, ship_date, custom_attributes)
			 VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)`, r...)
		require.NoError(t, err)
	}
	return s
}

func run(t *testing.T, s *Store, root *fs.FilterGroup) []int {
	t.Helper()
	ctx := context.Background()
	schema, err := s.Introspect(ctx, "shipments")
	require.NoError(t, err)
	spec := &fs.ResolvedFilterSpec{Status: fs.StatusResolved, Root: root, SchemaSignature: schema.Signature, DictionaryVersion: "v"}
	compiled, err := compiler.New(s.Dialect.Filter(), fs.DefaultLimits()).Compile(spec, schema)
	require.NoError(t, err)

	rows, err := s.Execute(ctx, Query{Table: "shipments", Schema: schema, Filter: compiled, Limit: 50})
	require.NoError(t, err)
	ids := make([]int, len(rows))
	for i, row := range rows {
		ids[i] = cast.ToInt(row["id"])
	}
	sort.Ints(ids)
	return ids
}

func TestIntrospect(t *testing.T) {
	s := openTestStore(t)
	schema, err := s.Introspect(context.Background(), "shipments")
	require.NoError(t, err)
	assert.Equal(t, "TEXT", schema.Columns["state"])
	assert.Equal(t, "BOOLEAN", schema.Columns["residential"])
	assert.Equal(t, fs.SchemaSignature(schema.Columns), schema.Signature)

	_, err = s.Introspect(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownTable)
	assert.Contains(t, err.Error(), "does not exist")
	_, err = s.Introspect(context.Background(), `shipments"; DROP TABLE shipments; --`)
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestExecuteCompiledFilters(t *testing.T) {
	s := openTestStore(t)

	assert.Equal(t, []int{1}, run(t, s, fs.And(
		fs.Cond("state", fs.OpIn, fs.Strings("NY", "MA", "CT", "PA", "NJ", "ME")...),
		fs.Cond("company", fs.OpIsNotBlank),
	)))
	assert.Equal(t, []int{2, 3, 4}, run(t, s, fs.And(fs.Cond("state", fs.OpNeq, fs.String("NY")))))
	assert.Equal(t, []int{3, 4}, run(t, s, fs.And(fs.Cond("state", fs.OpNotIn, fs.Strings("NY", "MA")...))))
	assert.Equal(t, []int{2, 3}, run(t, s, fs.And(fs.Cond("company", fs.OpIsBlank))))
	assert.Equal(t, []int{4}, run(t, s, fs.And(fs.Cond("company", fs.OpContainsCI, fs.String("50%")))))
	assert.Equal(t, []int{1}, run(t, s, fs.And(fs.Cond("company", fs.OpStartsWithCI, fs.String("acme")))))
	assert.Equal(t, []int{1, 4}, run(t, s, fs.And(fs.Cond("order_total", fs.OpGt, fs.String("$500")))))
	assert.Equal(t, []int{3, 4}, run(t, s, fs.And(fs.Cond("weight", fs.OpBetween, fs.Int(3), fs.Int(12)))))
	assert.Equal(t, []int{1, 4}, run(t, s, fs.And(fs.Cond("ship_date", fs.OpGte, fs.Date("2024-03-01")))))
	assert.Equal(t, []int{2, 3}, run(t, s, fs.And(fs.Cond("residential", fs.OpEq, fs.Bool(true)))))
	assert.Equal(t, []int{1, 4}, run(t, s, fs.And(fs.Cond("custom_attributes.gift-message", fs.OpIsNotNull))))
}

func TestExecuteNormalizesBooleans(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	schema, err := s.Introspect(ctx, "shipments")
	require.NoError(t, err)
	spec := &fs.ResolvedFilterSpec{Status: fs.StatusResolved, Root: fs.And(fs.Cond("id", fs.OpEq, fs.Int(2))), SchemaSignature: schema.Signature}
	compiled, err := compiler.New(s.Dialect.Filter(), fs.DefaultLimits()).Compile(spec, schema)
	require.NoError(t, err)

	rows, err := s.Execute(ctx, Query{Table: "shipments", Schema: schema, Filter: compiled, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0]["residential"])
}

func TestExecuteRejectsMismatchedArtifacts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	schema, err := s.Introspect(ctx, "shipments")
	require.NoError(t, err)
	spec := &fs.ResolvedFilterSpec{Status: fs.StatusResolved, Root: fs.And(fs.Cond("state", fs.OpIsNull)), SchemaSignature: schema.Signature}

	duck, err := compiler.New(compiler.DuckDBDialect{}, fs.DefaultLimits()).Compile(spec, schema)
	require.NoError(t, err)
	_, err = s.Execute(ctx, Query{Table: "shipments", Schema: schema, Filter: duck, Limit: 10})
	assert.Error(t, err)

	compiled, err := compiler.New(s.Dialect.Filter(), fs.DefaultLimits()).Compile(spec, schema)
	require.NoError(t, err)

	_, err = s.DB.ExecContext(ctx, "ALTER TABLE shipments ADD COLUMN zip TEXT")
	require.NoError(t, err)
	live, err := s.Introspect(ctx, "shipments")
	require.NoError(t, err)
	_, err = s.Execute(ctx, Query{Table: "shipments", Schema: live, Filter: compiled, Limit: 10})
	assert.Equal(t, fs.CodeSchemaChanged, fs.CodeOf(err))

	_, err = s.Execute(ctx, Query{Table: "shipments", Schema: schema, Filter: compiled, Limit: 0})
	assert.Error(t, err)
}

func TestConfirmationsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	c := fs.Confirmation{ExpansionHash: "h1", CanonicalKey: "NORTHEAST", Expansion: "state in [CT, MA]", ConfirmedAt: at}

	require.NoError(t, s.RecordConfirmations(ctx, "sess-a", []fs.Confirmation{c}))
	later := c
	later.ConfirmedAt = at.Add(time.Hour)
	require.NoError(t, s.RecordConfirmations(ctx, "sess-a", []fs.Confirmation{later}))

	got, err := s.Confirmations(ctx, "sess-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got["h1"].ConfirmedAt.Equal(at), "first confirmation wins")
	assert.Equal(t, "NORTHEAST", got["h1"].CanonicalKey)

	other, err := s.Confirmations(ctx, "sess-b")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAuditEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().AddDate(0, 0, -40)
	recent := time.Now().UTC()

	require.NoError(t, s.InsertAuditEvents(ctx, []audit.Event{
		{ID: "e1", SessionID: "s1", Action: audit.ActionResolve, Status: audit.StatusOK, SpecHash: "abc", CreatedAt: old},
		{ID: "e2", SessionID: "s1", Action: audit.ActionExecute, Status: audit.StatusOK, RowCount: 7, DurationMs: 1.5, CreatedAt: recent},
		{ID: "e3", SessionID: "s2", Action: audit.ActionCompile, Status: audit.StatusError, Code: fs.CodeSchemaChanged, CreatedAt: recent},
	}))

	events, err := s.ListAuditEvents(ctx, audit.Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e2", events[0].ID)
	assert.Equal(t, int64(7), events[0].RowCount)

	events, err = s.ListAuditEvents(ctx, audit.Query{Action: audit.ActionCompile})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fs.CodeSchemaChanged, events[0].Code)

	n, err := s.DeleteAuditEventsBefore(ctx, time.Now().UTC().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = s.InsertAuditEvents(ctx, []audit.Event{{ID: "e2", Action: audit.ActionResolve, Status: audit.StatusOK, CreatedAt: recent}})
	assert.True(t, errors.Is(err, ErrUniqueViolation))
}

func TestNewDialect(t *testing.T) {
	for driver, want := range map[string]string{"": "duckdb", "duckdb": "duckdb", "postgres": "postgres", "sqlite": "sqlite"} {
		d, err := NewDialect(driver)
		require.NoError(t, err)
		assert.Equal(t, want, d.Name())
		assert.Equal(t, want, d.Filter().Name())
	}
	_, err := NewDialect("oracle")
	assert.Error(t, err)
}
