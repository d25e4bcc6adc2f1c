package pipeline

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
	"shipfilter/internal/dictionary"
	fs "shipfilter/internal/filterspec"
	"shipfilter/internal/preview"
	"shipfilter/internal/session"
	"shipfilter/internal/store"
	"shipfilter/internal/token"
)

const testSecret = "pipeline-test-secret-0123456789abcdef"

func openStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "pipeline.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Bootstrap(ctx))

	_, err = s.DB.ExecContext(ctx, `CREATE TABLE shipments (id INTEGER PRIMARY KEY, state TEXT, company TEXT, weight REAL)`)
	require.NoError(t, err)
	_, err = s.DB.ExecContext(ctx, `INSERT INTO shipments (id, state, company, weight) VALUES
		(1, 'NY', 'Acme Corp', 72.5),
		(2, 'MA', '', 0.5),
		(3, 'TX', 'Lone Star', 12.0),
		(4, 'VT', 'Maple Co', 3.0)`)
	require.NoError(t, err)
	return s
}

type fixture struct {
	svc      *Service
	db       *store.Store
	recorder *audit.Memory
}

func newFixture(t *testing.T, confirmations session.ConfirmationStore) *fixture {
	t.Helper()
	db := openStore(t)
	if confirmations == nil {
		confirmations = db
	}
	signer, err := token.NewSigner(testSecret)
	require.NoError(t, err)
	rec := &audit.Memory{}
	svc, err := New(Options{
		Dictionary:    dictionary.Default(),
		Signer:        signer,
		Confirmations: confirmations,
		DB:            db,
		Table:         "shipments",
		Limits:        fs.DefaultLimits(),
		MaxRows:       50,
		Recorder:      rec,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, db: db, recorder: rec}
}

func ids(rows []map[string]any) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = cast.ToInt(r["id"])
	}
	sort.Ints(out)
	return out
}

func intent(root *fs.FilterGroup) fs.FilterIntent { return fs.FilterIntent{Root: root} }

func TestResolveAndExecute(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	spec, err := f.svc.Resolve(ctx, "s1", intent(fs.And(
		fs.Cond("state", fs.OpIn, fs.Strings("NY", "MA", "CT", "PA", "NJ", "ME")...),
		fs.Cond("company", fs.OpIsNotBlank),
	)))
	require.NoError(t, err)
	require.Equal(t, fs.StatusResolved, spec.Status)

	res, err := f.svc.Execute(ctx, "s1", spec, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids(res.Rows))
	assert.Equal(t, "sqlite", res.Filter.Dialect)

	events := f.recorder.Events()
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionResolve, events[0].Action)
	assert.Equal(t, spec.SpecHash, events[0].SpecHash)
	last := events[1]
	assert.Equal(t, audit.ActionExecute, last.Action)
	assert.Equal(t, audit.StatusOK, last.Status)
	assert.Equal(t, int64(1), last.RowCount)
	assert.Equal(t, res.Filter.CompiledHash, last.CompiledHash)
	assert.Equal(t, spec.SchemaSignature, last.SchemaSignature)
	assert.Equal(t, dictionary.Version, last.DictionaryVersion)
}

func TestConfirmFlow(t *testing.T) {
	for name, confirmations := range map[string]session.ConfirmationStore{
		"sql":    nil,
		"memory": session.NewMemoryStore(),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, confirmations)
			ctx := context.Background()
			in := intent(fs.And(fs.Ref("the Northeast", "")))

			first, err := f.svc.Resolve(ctx, "s1", in)
			require.NoError(t, err)
			require.Equal(t, fs.StatusNeedsConfirmation, first.Status)
			require.NotEmpty(t, first.ResolutionToken)

			_, err = f.svc.Compile(ctx, "s1", first, "")
			assert.Equal(t, fs.CodeConfirmationRequired, fs.CodeOf(err))

			confirmed, err := f.svc.Confirm(ctx, "s1", first.ResolutionToken, in)
			require.NoError(t, err)
			assert.Equal(t, fs.StatusResolved, confirmed.Status)
			assert.Equal(t, first.SpecHash, confirmed.SpecHash)

			res, err := f.svc.Execute(ctx, "s1", confirmed, 10)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 2, 4}, ids(res.Rows))

			again, err := f.svc.Resolve(ctx, "s1", in)
			require.NoError(t, err)
			assert.Equal(t, fs.StatusResolved, again.Status, "confirmation persists within the session")

			other, err := f.svc.Resolve(ctx, "s2", in)
			require.NoError(t, err)
			assert.Equal(t, fs.StatusNeedsConfirmation, other.Status, "confirmations do not leak across sessions")
		})
	}
}

func TestConfirmRejectsForeignSessionAndChangedIntent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	in := intent(fs.And(fs.Ref("northeast", "")))

	first, err := f.svc.Resolve(ctx, "s1", in)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, "s2", first.ResolutionToken, in)
	assert.Equal(t, fs.CodeTokenInvalidOrExpired, fs.CodeOf(err))

	changed := intent(fs.And(fs.Ref("northeast", ""), fs.Cond("company", fs.OpIsNotBlank)))
	_, err = f.svc.Confirm(ctx, "s1", first.ResolutionToken, changed)
	assert.Equal(t, fs.CodeTokenHashMismatch, fs.CodeOf(err))

	_, err = f.svc.Confirm(ctx, "s1", "not-a-token", in)
	assert.Equal(t, fs.CodeTokenInvalidOrExpired, fs.CodeOf(err))

	prior, err := f.db.Confirmations(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, prior, "failed confirmations record nothing")

	last := f.recorder.Last()
	assert.Equal(t, audit.ActionConfirm, last.Action)
	assert.Equal(t, audit.StatusError, last.Status)
	assert.Equal(t, fs.CodeTokenInvalidOrExpired, last.Code)
}

func TestConfirmFailsWhenTermsRemainUnresolved(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	signer, err := token.NewSigner(testSecret)
	require.NoError(t, err)

	in := intent(fs.And(fs.Ref("northeast", ""), fs.Ref("the south", "state")))
	fresh, err := f.svc.Resolve(ctx, "s1", in)
	require.NoError(t, err)
	require.Equal(t, fs.StatusUnresolved, fresh.Status)
	require.Empty(t, fresh.ResolutionToken)

	schema, err := f.svc.Schema(ctx)
	require.NoError(t, err)
	raw, err := signer.Mint(token.Binding{
		SessionID:         "s1",
		SchemaSignature:   schema.Signature,
		DictionaryVersion: dictionary.Version,
		SpecHash:          fresh.SpecHash,
		ExpansionHashes:   fresh.ExpansionHashes(),
		Status:            fs.StatusNeedsConfirmation,
	})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, "s1", raw, in)
	assert.Equal(t, fs.CodeConfirmationRequired, fs.CodeOf(err))
}

func TestExecuteDetectsSchemaDrift(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	spec, err := f.svc.Resolve(ctx, "s1", intent(fs.And(fs.Cond("state", fs.OpEq, fs.String("NY")))))
	require.NoError(t, err)

	_, err = f.db.DB.ExecContext(ctx, "ALTER TABLE shipments ADD COLUMN zip TEXT")
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, "s1", spec, 10)
	assert.Equal(t, fs.CodeSchemaChanged, fs.CodeOf(err))
	last := f.recorder.Last()
	assert.Equal(t, audit.StatusError, last.Status)
	assert.Equal(t, fs.CodeSchemaChanged, last.Code)

	_, err = f.svc.Confirm(ctx, "s1", "", intent(spec.Root))
	assert.Error(t, err)
}

func TestExecuteRejectsSpecsTheServiceDidNotIssue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	pending, err := f.svc.Resolve(ctx, "s1", intent(fs.And(fs.Ref("the Northeast", ""))))
	require.NoError(t, err)
	require.Equal(t, fs.StatusNeedsConfirmation, pending.Status)
	resolved, err := f.svc.Resolve(ctx, "s1", intent(fs.And(fs.Cond("state", fs.OpEq, fs.String("NY")))))
	require.NoError(t, err)
	require.Equal(t, fs.StatusResolved, resolved.Status)

	cases := map[string]struct {
		session string
		mutate  func(*fs.ResolvedFilterSpec)
		code    fs.ErrorCode
	}{
		"status flipped with token kept": {"s1", func(s *fs.ResolvedFilterSpec) {
			*s = *pending
			s.Status = fs.StatusResolved
		}, fs.CodeTokenInvalidOrExpired},
		"status flipped with token dropped": {"s1", func(s *fs.ResolvedFilterSpec) {
			*s = *pending
			s.Status = fs.StatusResolved
			s.ResolutionToken = ""
		}, fs.CodeTokenInvalidOrExpired},
		"tree swapped under a valid token": {"s1", func(s *fs.ResolvedFilterSpec) {
			s.Root = pending.Root
			s.SpecHash = pending.SpecHash
		}, fs.CodeTokenHashMismatch},
		"forged spec hash": {"s1", func(s *fs.ResolvedFilterSpec) {
			s.SpecHash = "not-a-real-hash"
		}, fs.CodeTokenHashMismatch},
		"forged dictionary version": {"s1", func(s *fs.ResolvedFilterSpec) {
			s.DictionaryVersion = "forged"
		}, fs.CodeSchemaChanged},
		"another session": {"s2", func(*fs.ResolvedFilterSpec) {}, fs.CodeTokenInvalidOrExpired},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			spec := *resolved
			tc.mutate(&spec)
			_, err := f.svc.Execute(ctx, tc.session, &spec, 10)
			assert.Equal(t, tc.code, fs.CodeOf(err))
			_, err = f.svc.Compile(ctx, tc.session, &spec, "")
			assert.Equal(t, tc.code, fs.CodeOf(err))
		})
	}

	prior, err := f.db.Confirmations(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, prior)
}

func TestCompileAuditsRecomputedHash(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	spec, err := f.svc.Resolve(ctx, "s1", intent(fs.And(fs.Cond("state", fs.OpEq, fs.String("NY")))))
	require.NoError(t, err)

	compiled, err := f.svc.Compile(ctx, "s1", spec, "")
	require.NoError(t, err)
	last := f.recorder.Last()
	assert.Equal(t, compiled.SpecHash, last.SpecHash)
	assert.Equal(t, dictionary.Version, compiled.DictionaryVersion)

	forged := *spec
	forged.SpecHash = "not-a-real-hash"
	_, err = f.svc.Compile(ctx, "s1", &forged, "")
	require.Error(t, err)
	assert.Equal(t, fs.CodeTokenHashMismatch, f.recorder.Last().Code)
}

func TestCompileDialects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	spec, err := f.svc.Resolve(ctx, "s1", intent(fs.And(fs.Cond("company", fs.OpContainsCI, fs.String("acme")))))
	require.NoError(t, err)

	duck, err := f.svc.Compile(ctx, "s1", spec, "")
	require.NoError(t, err)
	assert.Equal(t, "duckdb", duck.Dialect)

	pg, err := f.svc.Compile(ctx, "s1", spec, "postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", pg.Dialect)
	assert.Equal(t, duck.SpecHash, pg.SpecHash)
	assert.NotEqual(t, duck.CompiledHash, pg.CompiledHash)

	_, err = f.svc.Compile(ctx, "s1", spec, "oracle")
	assert.Error(t, err)
	_, err = f.svc.Compile(ctx, "s1", nil, "")
	assert.Equal(t, fs.CodeConfirmationRequired, fs.CodeOf(err))
}

func TestStaticSchemaWithoutDatabase(t *testing.T) {
	signer, err := token.NewSigner(testSecret)
	require.NoError(t, err)
	schema := fs.NewSnapshot(map[string]string{"state": "VARCHAR", "company": "VARCHAR"})
	svc, err := New(Options{
		Dictionary:    dictionary.Default(),
		Signer:        signer,
		Confirmations: session.NewMemoryStore(),
		Schema:        &schema,
		Limits:        fs.DefaultLimits(),
		Now:           func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	ctx := context.Background()

	spec, err := svc.Resolve(ctx, "s1", intent(fs.And(fs.Ref("New York", ""))))
	require.NoError(t, err)
	assert.Equal(t, fs.StatusResolved, spec.Status)

	compiled, err := svc.Compile(ctx, "s1", spec, "")
	require.NoError(t, err)
	assert.Equal(t, `"state" = $1`, compiled.QueryText)

	_, err = svc.Execute(ctx, "s1", spec, 10)
	assert.True(t, errors.Is(err, ErrNoDatabase))
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil)
	rows := []preview.Row{
		{"id": 1, "state": "NY", "company": "Acme"},
		{"id": 2, "state": "TX", "company": "Lone Star"},
	}
	out, err := f.svc.Preview(context.Background(), "s1", fs.And(fs.Cond("state", fs.OpEq, fs.String("NY"))), rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0]["id"])

	last := f.recorder.Last()
	assert.Equal(t, audit.ActionPreview, last.Action)
	assert.Equal(t, int64(1), last.RowCount)

	_, err = f.svc.Preview(context.Background(), "s1", fs.And(fs.Ref("northeast", "")), rows)
	assert.Equal(t, fs.CodeConfirmationRequired, fs.CodeOf(err))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	signer, err := token.NewSigner(testSecret)
	require.NoError(t, err)
	_, err = New(Options{Dictionary: dictionary.Default(), Signer: signer, Confirmations: session.NewMemoryStore()})
	assert.Error(t, err, "needs a database or a schema")
}
