// Package resolver expands the semantic references of a filter intent into
// concrete column conditions, classifying every term by ambiguity tier.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"shipfilter/internal/dictionary"
	"shipfilter/internal/filterspec"
	"shipfilter/internal/token"
)

// Request is a single resolution call. Prior holds the confirmations the
// session has already granted; the resolver never writes to it.
type Request struct {
	Intent    filterspec.FilterIntent
	Schema    filterspec.Snapshot
	Prior     filterspec.Confirmations
	SessionID string
}

// Resolver is stateless apart from its immutable collaborators and may be
// shared across goroutines.
type Resolver struct {
	dict   *dictionary.Dictionary
	signer *token.Signer
	limits filterspec.Limits
}

func New(dict *dictionary.Dictionary, signer *token.Signer, limits filterspec.Limits) *Resolver {
	return &Resolver{dict: dict, signer: signer, limits: limits}
}

func (r *Resolver) Dictionary() *dictionary.Dictionary { return r.dict }

// walk accumulates the outcome of one resolution pass.
type walk struct {
	r          *Resolver
	schema     filterspec.Snapshot
	prior      filterspec.Confirmations
	status     filterspec.Status
	pending    map[string]filterspec.PendingConfirmation
	unresolved []filterspec.UnresolvedTerm
}

// Resolve validates the intent against the live schema, expands dictionary
// terms and returns a canonical spec. Typed failures are returned as errors
// and no partial spec is produced. RESOLVED and NEEDS_CONFIRMATION results
// carry a resolution token bound to their status; UNRESOLVED results carry
// none.
func (r *Resolver) Resolve(req Request) (*filterspec.ResolvedFilterSpec, error) {
	root := req.Intent.Root
	if root == nil {
		root = filterspec.And()
	}
	if sig := req.Intent.SchemaSignature; sig != "" && sig != req.Schema.Signature {
		return nil, filterspec.NewError(filterspec.CodeSchemaChanged,
			"intent was built for schema %s but the live schema is %s", short(sig), short(req.Schema.Signature))
	}
	if err := r.limits.CheckShape(root); err != nil {
		return nil, err
	}

	w := &walk{
		r:       r,
		schema:  req.Schema,
		prior:   req.Prior,
		status:  filterspec.StatusResolved,
		pending: make(map[string]filterspec.PendingConfirmation),
	}
	resolved, err := w.group(root)
	if err != nil {
		return nil, err
	}

	canon := filterspec.Canonicalize(resolved)
	out := &filterspec.ResolvedFilterSpec{
		Status:            w.status,
		Root:              canon,
		Explanation:       filterspec.Explain(canon),
		SchemaSignature:   req.Schema.Signature,
		DictionaryVersion: r.dict.Version(),
		SpecHash:          filterspec.SpecHash(canon, req.Schema.Signature, r.dict.Version()),
	}
	out.PendingConfirmations = w.sortedPending()
	out.UnresolvedTerms = w.unresolved
	sort.SliceStable(out.UnresolvedTerms, func(i, j int) bool {
		return out.UnresolvedTerms[i].Phrase < out.UnresolvedTerms[j].Phrase
	})

	if out.Status == filterspec.StatusResolved && filterspec.ContainsSemantic(canon) {
		return nil, filterspec.NewError(filterspec.CodeConfirmationRequired, "resolved spec still holds semantic references")
	}
	if out.Status != filterspec.StatusUnresolved {
		if r.signer == nil {
			return nil, fmt.Errorf("resolve: no token signer configured")
		}
		tok, err := r.signer.Mint(token.Binding{
			SessionID:         req.SessionID,
			SchemaSignature:   out.SchemaSignature,
			DictionaryVersion: out.DictionaryVersion,
			SpecHash:          out.SpecHash,
			ExpansionHashes:   out.ExpansionHashes(),
			Status:            out.Status,
		})
		if err != nil {
			return nil, err
		}
		out.ResolutionToken = tok
	}
	return out, nil
}

func (w *walk) node(n filterspec.Node) (filterspec.Node, error) {
	switch v := n.(type) {
	case *filterspec.FilterCondition:
		if _, err := filterspec.ValidateCondition(v, w.schema); err != nil {
			return nil, err
		}
		return v.Clone(), nil
	case *filterspec.FilterGroup:
		return w.group(v)
	case *filterspec.SemanticReference:
		return w.semantic(v)
	}
	return nil, fmt.Errorf("resolve: unexpected node %T", n)
}

func (w *walk) group(g *filterspec.FilterGroup) (*filterspec.FilterGroup, error) {
	if !g.Logic.Valid() {
		return nil, filterspec.NewError(filterspec.CodeInvalidOperator, "group logic %q must be AND or OR", string(g.Logic))
	}
	out := &filterspec.FilterGroup{Logic: g.Logic, Conditions: make([]filterspec.Node, 0, len(g.Conditions))}
	for _, child := range g.Conditions {
		resolved, err := w.node(child)
		if err != nil {
			return nil, err
		}
		out.Conditions = append(out.Conditions, resolved)
	}
	return out, nil
}

func (w *walk) semantic(ref *filterspec.SemanticReference) (filterspec.Node, error) {
	phrase := strings.TrimSpace(ref.SemanticKey)
	if phrase == "" {
		return nil, filterspec.NewError(filterspec.CodeUnknownCanonicalTerm, "semantic reference has an empty key")
	}
	dict := w.r.dict
	entry, ok := dict.Lookup(phrase)
	if !ok || entry.Tier == filterspec.TierC {
		w.status = filterspec.Worse(w.status, filterspec.StatusUnresolved)
		w.unresolved = append(w.unresolved, filterspec.UnresolvedTerm{
			Phrase:      phrase,
			Code:        filterspec.CodeUnknownCanonicalTerm,
			Suggestions: dict.Suggest(phrase),
		})
		return &filterspec.SemanticReference{SemanticKey: phrase, TargetColumn: ref.TargetColumn}, nil
	}

	column, err := dict.ResolveTarget(entry, ref.TargetColumn, w.schema)
	if err != nil {
		return nil, err
	}
	cond, err := entry.Expand(column)
	if err != nil {
		return nil, err
	}
	if _, err := filterspec.ValidateCondition(cond, w.schema); err != nil {
		return nil, fmt.Errorf("expand %s: %w", entry.Key, err)
	}

	if entry.Tier == filterspec.TierA {
		return cond, nil
	}

	hash := filterspec.ExpansionHash(entry.Key, dict.Version(), w.schema.Signature, cond)
	if w.prior.Has(hash) {
		return cond, nil
	}
	w.status = filterspec.Worse(w.status, filterspec.StatusNeedsConfirmation)
	if prev, seen := w.pending[hash]; !seen || phrase < prev.Term {
		w.pending[hash] = filterspec.PendingConfirmation{
			Term:          phrase,
			CanonicalKey:  entry.Key,
			Expansion:     fmt.Sprintf("%s: %s", entry.Description, filterspec.ConditionLabel(cond)),
			ExpansionHash: hash,
			Tier:          entry.Tier,
		}
	}
	return cond, nil
}

func (w *walk) sortedPending() []filterspec.PendingConfirmation {
	if len(w.pending) == 0 {
		return nil
	}
	out := make([]filterspec.PendingConfirmation, 0, len(w.pending))
	for _, p := range w.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CanonicalKey != out[j].CanonicalKey {
			return out[i].CanonicalKey < out[j].CanonicalKey
		}
		return out[i].ExpansionHash < out[j].ExpansionHash
	})
	return out
}

func short(sig string) string {
	if len(sig) > 12 {
		return sig[:12]
	}
	return sig
}
