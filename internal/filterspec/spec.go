package filterspec

import "time"

// Status is the aggregate resolution state of a spec.
type Status string

const (
	StatusResolved          Status = "RESOLVED"
	StatusNeedsConfirmation Status = "NEEDS_CONFIRMATION"
	StatusUnresolved        Status = "UNRESOLVED"
)

func (s Status) rank() int {
	switch s {
	case StatusUnresolved:
		return 2
	case StatusNeedsConfirmation:
		return 1
	}
	return 0
}

// Worse returns whichever status takes precedence:
// UNRESOLVED over NEEDS_CONFIRMATION over RESOLVED.
func Worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	if a == "" {
		return StatusResolved
	}
	return a
}

// Tier is the ambiguity class of a canonical term.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

// FilterIntent is the tree submitted for resolution.
type FilterIntent struct {
	Root            *FilterGroup `json:"root"`
	SchemaSignature string       `json:"schema_signature,omitempty"`
}

// PendingConfirmation describes a Tier B expansion awaiting user approval.
type PendingConfirmation struct {
	Term          string `json:"term"`
	CanonicalKey  string `json:"canonical_key"`
	Expansion     string `json:"expansion"`
	ExpansionHash string `json:"expansion_hash"`
	Tier          Tier   `json:"tier"`
}

// Suggestion is a candidate canonical term offered for an unknown phrase.
type Suggestion struct {
	Key         string `json:"key"`
	Tier        Tier   `json:"tier"`
	Description string `json:"description"`
}

// UnresolvedTerm is a phrase the dictionary could not place.
type UnresolvedTerm struct {
	Phrase      string       `json:"phrase"`
	Code        ErrorCode    `json:"code"`
	Suggestions []Suggestion `json:"suggestions"`
}

// ResolvedFilterSpec is the resolver output. Root holds no SemanticReference
// when Status is RESOLVED.
type ResolvedFilterSpec struct {
	Status               Status                `json:"status"`
	Root                 *FilterGroup          `json:"root"`
	Explanation          string                `json:"explanation"`
	ResolutionToken      string                `json:"resolution_token,omitempty"`
	PendingConfirmations []PendingConfirmation `json:"pending_confirmations,omitempty"`
	UnresolvedTerms      []UnresolvedTerm      `json:"unresolved_terms,omitempty"`
	SchemaSignature      string                `json:"schema_signature"`
	DictionaryVersion    string                `json:"dictionary_version"`
	SpecHash             string                `json:"spec_hash"`
}

// ExpansionHashes returns the hashes of every pending confirmation, in order.
func (s *ResolvedFilterSpec) ExpansionHashes() []string {
	out := make([]string, 0, len(s.PendingConfirmations))
	for _, p := range s.PendingConfirmations {
		out = append(out, p.ExpansionHash)
	}
	return out
}

// CompiledFilter is the immutable compiler output.
type CompiledFilter struct {
	QueryText         string   `json:"query_text"`
	Params            []any    `json:"params"`
	ColumnsUsed       []string `json:"columns_used"`
	Explanation       string   `json:"explanation"`
	SchemaSignature   string   `json:"schema_signature"`
	DictionaryVersion string   `json:"dictionary_version"`
	Dialect           string   `json:"dialect"`
	SpecHash          string   `json:"spec_hash"`
	CompiledHash      string   `json:"compiled_hash"`
}

// Confirmation is a Tier B expansion a user approved within a session.
type Confirmation struct {
	ExpansionHash string    `json:"expansion_hash"`
	CanonicalKey  string    `json:"canonical_key"`
	Expansion     string    `json:"expansion"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

// Confirmations maps expansion hash to the approved expansion. The resolver
// only reads it.
type Confirmations map[string]Confirmation

func (c Confirmations) Has(hash string) bool {
	if c == nil {
		return false
	}
	_, ok := c[hash]
	return ok
}
