// Package pipeline ties the resolver, the confirmation store, the compiler
// and the database together into the resolve → confirm → compile → execute
// flow, auditing every step.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shipfilter/internal/audit"
	"shipfilter/internal/compiler"
	"shipfilter/internal/dictionary"
	"shipfilter/internal/filterspec"
	"shipfilter/internal/preview"
	"shipfilter/internal/resolver"
	"shipfilter/internal/session"
	"shipfilter/internal/store"
	"shipfilter/internal/token"
)

// ErrNoDatabase is returned by operations that need a live database when
// the service was built without one.
var ErrNoDatabase = errors.New("no database configured")

// Database is the slice of store.Store the pipeline needs.
type Database interface {
	Introspect(ctx context.Context, table string) (filterspec.Snapshot, error)
	Execute(ctx context.Context, q store.Query) ([]map[string]any, error)
	FilterDialect() compiler.Dialect
}

// Options configures a Service. Dictionary, Signer and Confirmations are
// required; Schema is used when DB is nil.
type Options struct {
	Dictionary    *dictionary.Dictionary
	Signer        *token.Signer
	Confirmations session.ConfirmationStore
	DB            Database
	Schema        *filterspec.Snapshot
	Table         string
	Dialect       string
	Limits        filterspec.Limits
	MaxRows       int
	Recorder      audit.Recorder
	Logger        *zap.Logger
	Now           func() time.Time
}

// Service is safe for concurrent use.
type Service struct {
	dict          *dictionary.Dictionary
	resolver      *resolver.Resolver
	signer        *token.Signer
	confirmations session.ConfirmationStore
	db            Database
	schema        *filterspec.Snapshot
	table         string
	compiler      *compiler.Compiler
	limits        filterspec.Limits
	maxRows       int
	preview       *preview.Evaluator
	recorder      audit.Recorder
	logger        *zap.Logger
	now           func() time.Time
}

func New(opts Options) (*Service, error) {
	if opts.Dictionary == nil || opts.Signer == nil || opts.Confirmations == nil {
		return nil, fmt.Errorf("pipeline: dictionary, signer and confirmation store are required")
	}
	if opts.DB == nil && opts.Schema == nil {
		return nil, fmt.Errorf("pipeline: either a database or a static schema is required")
	}
	dialect, err := compiler.LookupDialect(opts.Dialect)
	if err != nil {
		return nil, err
	}
	if opts.Table == "" {
		opts.Table = "shipments"
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = 1000
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		dict:          opts.Dictionary,
		resolver:      resolver.New(opts.Dictionary, opts.Signer, opts.Limits),
		signer:        opts.Signer,
		confirmations: opts.Confirmations,
		db:            opts.DB,
		schema:        opts.Schema,
		table:         opts.Table,
		compiler:      compiler.New(dialect, opts.Limits),
		limits:        opts.Limits,
		maxRows:       opts.MaxRows,
		preview:       preview.NewEvaluator(opts.Limits),
		recorder:      opts.Recorder,
		logger:        opts.Logger,
		now:           opts.Now,
	}, nil
}

func (s *Service) Dictionary() *dictionary.Dictionary { return s.dict }
func (s *Service) Table() string                      { return s.table }

// Schema returns the live schema of the configured table.
func (s *Service) Schema(ctx context.Context) (filterspec.Snapshot, error) {
	if s.db == nil {
		return *s.schema, nil
	}
	return s.db.Introspect(ctx, s.table)
}

// Resolve resolves an intent using the confirmations already granted in the
// session.
func (s *Service) Resolve(ctx context.Context, sessionID string, intent filterspec.FilterIntent) (spec *filterspec.ResolvedFilterSpec, err error) {
	ev := s.begin(sessionID, audit.ActionResolve)
	defer func() { s.finish(ev, spec, nil, err) }()

	schema, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	ev.SchemaSignature = schema.Signature
	prior, err := s.confirmations.Confirmations(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load confirmations: %w", err)
	}
	return s.resolver.Resolve(resolver.Request{Intent: intent, Schema: schema, Prior: prior, SessionID: sessionID})
}

// Confirm grants the pending expansions a resolution token was minted for
// and returns the intent re-resolved with them. The intent is re-resolved from
// scratch first so the user confirms exactly what they were shown.
func (s *Service) Confirm(ctx context.Context, sessionID, rawToken string, intent filterspec.FilterIntent) (spec *filterspec.ResolvedFilterSpec, err error) {
	ev := s.begin(sessionID, audit.ActionConfirm)
	defer func() { s.finish(ev, spec, nil, err) }()

	schema, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	ev.SchemaSignature = schema.Signature
	claims, err := s.signer.Verify(rawToken, token.Expect{
		SessionID:         sessionID,
		SchemaSignature:   schema.Signature,
		DictionaryVersion: s.dict.Version(),
		Status:            filterspec.StatusNeedsConfirmation,
	})
	if err != nil {
		return nil, err
	}

	fresh, err := s.resolver.Resolve(resolver.Request{Intent: intent, Schema: schema, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	ev.SpecHash = fresh.SpecHash
	if fresh.SpecHash != claims.ResolvedSpecHash {
		return nil, filterspec.NewError(filterspec.CodeTokenHashMismatch,
			"resolved spec does not match the expansion the token was issued for")
	}

	granted := make([]filterspec.Confirmation, 0, len(fresh.PendingConfirmations))
	at := s.now().UTC()
	for _, p := range fresh.PendingConfirmations {
		granted = append(granted, filterspec.Confirmation{
			ExpansionHash: p.ExpansionHash,
			CanonicalKey:  p.CanonicalKey,
			Expansion:     p.Expansion,
			ConfirmedAt:   at,
		})
	}
	if err := s.confirmations.RecordConfirmations(ctx, sessionID, granted); err != nil {
		return nil, fmt.Errorf("record confirmations: %w", err)
	}

	prior, err := s.confirmations.Confirmations(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load confirmations: %w", err)
	}
	out, err := s.resolver.Resolve(resolver.Request{Intent: intent, Schema: schema, Prior: prior, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if out.Status != filterspec.StatusResolved {
		return nil, filterspec.NewError(filterspec.CodeConfirmationRequired,
			"spec is still %s after confirmation", out.Status)
	}
	return out, nil
}

// Compile compiles a resolved spec for the named dialect against the live
// schema. An empty dialect uses the service default. The spec must carry the
// RESOLVED token it was issued with.
func (s *Service) Compile(ctx context.Context, sessionID string, spec *filterspec.ResolvedFilterSpec, dialect string) (compiled *filterspec.CompiledFilter, err error) {
	ev := s.begin(sessionID, audit.ActionCompile)
	defer func() { s.finish(ev, spec, compiled, err) }()

	c := s.compiler
	if dialect != "" && dialect != c.Dialect().Name() {
		d, err := compiler.LookupDialect(dialect)
		if err != nil {
			return nil, err
		}
		c = compiler.New(d, s.limits)
	}
	ev.Dialect = c.Dialect().Name()

	schema, err := s.Schema(ctx)
	if err != nil {
		return nil, err
	}
	ev.SchemaSignature = schema.Signature
	if err := s.admit(sessionID, spec, schema); err != nil {
		return nil, err
	}
	return c.Compile(spec, schema)
}

// Result is the outcome of Execute.
type Result struct {
	Filter *filterspec.CompiledFilter `json:"filter"`
	Rows   []map[string]any           `json:"rows"`
}

// Execute compiles a resolved spec against the database's live schema and runs it.
// Limit is capped at the configured maximum.
func (s *Service) Execute(ctx context.Context, sessionID string, spec *filterspec.ResolvedFilterSpec, limit int) (res *Result, err error) {
	ev := s.begin(sessionID, audit.ActionExecute)
	defer func() {
		var compiled *filterspec.CompiledFilter
		if res != nil {
			compiled = res.Filter
			ev.RowCount = int64(len(res.Rows))
		}
		s.finish(ev, spec, compiled, err)
	}()

	if s.db == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 || limit > s.maxRows {
		limit = s.maxRows
	}
	schema, err := s.db.Introspect(ctx, s.table)
	if err != nil {
		return nil, err
	}
	ev.SchemaSignature = schema.Signature
	if err := s.admit(sessionID, spec, schema); err != nil {
		return nil, err
	}

	c := compiler.New(s.db.FilterDialect(), s.limits)
	ev.Dialect = c.Dialect().Name()
	compiled, err := c.Compile(spec, schema)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Execute(ctx, store.Query{Table: s.table, Schema: schema, Filter: compiled, Limit: limit})
	if err != nil {
		return &Result{Filter: compiled}, err
	}
	return &Result{Filter: compiled, Rows: rows}, nil
}

// Preview filters sample rows in memory with a fully resolved tree.
func (s *Service) Preview(_ context.Context, sessionID string, root *filterspec.FilterGroup, rows []preview.Row) (out []preview.Row, err error) {
	ev := s.begin(sessionID, audit.ActionPreview)
	defer func() {
		ev.RowCount = int64(len(out))
		s.finish(ev, nil, nil, err)
	}()
	if root != nil {
		ev.SpecHash = filterspec.SpecHash(filterspec.Canonicalize(root), "", s.dict.Version())
	}
	return s.preview.Evaluate(root, rows)
}

// admit accepts only a RESOLVED spec this service issued to the session,
// under the live schema and dictionary, with its tree unchanged since.
func (s *Service) admit(sessionID string, spec *filterspec.ResolvedFilterSpec, schema filterspec.Snapshot) error {
	if spec == nil {
		return filterspec.NewError(filterspec.CodeConfirmationRequired, "no resolved spec supplied")
	}
	if spec.Status != filterspec.StatusResolved {
		return filterspec.NewError(filterspec.CodeConfirmationRequired, "spec status is %q; only RESOLVED specs compile", spec.Status)
	}
	if spec.DictionaryVersion != s.dict.Version() {
		return filterspec.NewError(filterspec.CodeSchemaChanged,
			"spec was resolved under dictionary %q but the live dictionary is %q", spec.DictionaryVersion, s.dict.Version())
	}
	if spec.SchemaSignature != schema.Signature {
		return filterspec.NewError(filterspec.CodeSchemaChanged, "spec was resolved against a different schema")
	}
	root := spec.Root
	if root == nil {
		root = filterspec.And()
	}
	hash := filterspec.SpecHash(filterspec.Canonicalize(root), schema.Signature, s.dict.Version())
	if spec.SpecHash != hash {
		return filterspec.NewError(filterspec.CodeTokenHashMismatch, "spec hash does not match its condition tree")
	}
	if spec.ResolutionToken == "" {
		return filterspec.NewError(filterspec.CodeTokenInvalidOrExpired, "resolved spec carries no resolution token")
	}
	_, err := s.signer.Verify(spec.ResolutionToken, token.Expect{
		SessionID:         sessionID,
		SchemaSignature:   schema.Signature,
		DictionaryVersion: s.dict.Version(),
		SpecHash:          hash,
		Status:            filterspec.StatusResolved,
	})
	return err
}

type pending struct {
	audit.Event
	start time.Time
}

func (s *Service) begin(sessionID string, action audit.Action) *pending {
	now := s.now()
	return &pending{
		Event: audit.Event{
			SessionID:         sessionID,
			Action:            action,
			Status:            audit.StatusOK,
			DictionaryVersion: s.dict.Version(),
			CreatedAt:         now.UTC(),
		},
		start: now,
	}
}

func (s *Service) finish(p *pending, spec *filterspec.ResolvedFilterSpec, compiled *filterspec.CompiledFilter, err error) {
	e := &p.Event
	if spec != nil {
		e.SpecHash = spec.SpecHash
		if spec.SchemaSignature != "" && e.SchemaSignature == "" {
			e.SchemaSignature = spec.SchemaSignature
		}
	}
	if compiled != nil {
		e.SpecHash = compiled.SpecHash
		e.CompiledHash = compiled.CompiledHash
		e.Dialect = compiled.Dialect
	}
	e.DurationMs = float64(s.now().Sub(p.start).Microseconds()) / 1000
	if err != nil {
		e.Fail(err)
		s.logger.Debug("pipeline step failed",
			zap.String("action", string(e.Action)),
			zap.String("session_id", e.SessionID),
			zap.String("code", string(e.Code)),
			zap.Error(err),
		)
	}
	s.recorder.Record(*e)
}
