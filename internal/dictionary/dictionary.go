// Package dictionary holds the versioned canonical term dictionary that maps
// human vocabulary to filter expansions, and classifies every term into an
// ambiguity tier.
package dictionary

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"shipfilter/internal/filterspec"
)

// Version is recorded on every artifact produced against this dictionary.
const Version = "shipfilter_dict_v1"

// Kind groups entries by the shape of their expansion.
type Kind string

const (
	KindState     Kind = "state"
	KindService   Kind = "service"
	KindRegion    Kind = "region"
	KindPredicate Kind = "predicate"
	KindBand      Kind = "band"
	KindAmbiguous Kind = "ambiguous"
)

// TargetRule names the columns an expansion may land on, tried in order:
// exact names, then synonyms, then substrings of the column name.
type TargetRule struct {
	Exact      []string `json:"exact,omitempty"`
	Synonyms   []string `json:"synonyms,omitempty"`
	Substrings []string `json:"substrings,omitempty"`
}

// Entry is one canonical term.
type Entry struct {
	Key         string                    `json:"key"`
	Tier        filterspec.Tier           `json:"tier"`
	Kind        Kind                      `json:"kind"`
	Aliases     []string                  `json:"aliases"`
	Description string                    `json:"description"`
	Target      TargetRule                `json:"target"`
	Operator    filterspec.Operator       `json:"operator,omitempty"`
	Values      []filterspec.TypedLiteral `json:"values,omitempty"`
}

// Expand builds the condition this entry stands for on the given column.
// Tier C entries have no expansion.
func (e *Entry) Expand(column string) (*filterspec.FilterCondition, error) {
	if e.Tier == filterspec.TierC || e.Operator == "" {
		return nil, filterspec.NewError(filterspec.CodeUnknownCanonicalTerm, "term %q has no expansion", e.Key)
	}
	values := append([]filterspec.TypedLiteral(nil), e.Values...)
	return filterspec.Cond(column, e.Operator, values...), nil
}

// Dictionary is immutable after construction and safe for concurrent use.
type Dictionary struct {
	version string
	entries []*Entry          // sorted by key
	byAlias map[string]*Entry // normalized alias -> entry
	byKey   map[string]*Entry
}

// New builds a dictionary from entries. Every alias and the key itself are
// indexed under their normalized form; a normalized collision between two
// different entries is an error.
func New(version string, entries []Entry) (*Dictionary, error) {
	d := &Dictionary{
		version: version,
		byAlias: make(map[string]*Entry),
		byKey:   make(map[string]*Entry),
	}
	for i := range entries {
		e := entries[i]
		if e.Key == "" {
			return nil, fmt.Errorf("dictionary entry %d has no key", i)
		}
		if _, dup := d.byKey[e.Key]; dup {
			return nil, fmt.Errorf("duplicate dictionary key %q", e.Key)
		}
		entry := &e
		d.byKey[e.Key] = entry
		d.entries = append(d.entries, entry)
		for _, alias := range append([]string{e.Key}, e.Aliases...) {
			n := Normalize(alias)
			if n == "" {
				continue
			}
			if prev, ok := d.byAlias[n]; ok && prev != entry {
				return nil, fmt.Errorf("alias %q of %s collides with %s", alias, e.Key, prev.Key)
			}
			d.byAlias[n] = entry
		}
	}
	sort.Slice(d.entries, func(i, j int) bool { return d.entries[i].Key < d.entries[j].Key })
	return d, nil
}

func (d *Dictionary) Version() string { return d.version }

// Normalize case-folds a term and strips every rune that is not a letter or
// digit, so "The North-East" and "the northeast" share a key.
func Normalize(term string) string {
	folded := cases.Fold().String(term)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup finds the entry for a term. Blacklisted phrases are returned as
// Tier C entries; unknown terms return false.
func (d *Dictionary) Lookup(term string) (*Entry, bool) {
	e, ok := d.byAlias[Normalize(term)]
	return e, ok
}

// Tier classifies a term. Unknown terms are Tier C.
func (d *Dictionary) Tier(term string) filterspec.Tier {
	if e, ok := d.Lookup(term); ok {
		return e.Tier
	}
	return filterspec.TierC
}

// Entry returns the entry with the given canonical key.
func (d *Dictionary) Entry(key string) (*Entry, bool) {
	e, ok := d.byKey[key]
	return e, ok
}

// Entries returns every entry ordered by key. The returned entries must not
// be modified.
func (d *Dictionary) Entries() []*Entry {
	return append([]*Entry(nil), d.entries...)
}

// ResolveTarget picks the column an expansion applies to. An explicit column
// must exist in the schema. Otherwise the target rule is tried tier by tier:
// the first tier with any match decides, and more than one match there is
// AMBIGUOUS_TERM. No match at all is MISSING_TARGET_COLUMN.
func (d *Dictionary) ResolveTarget(e *Entry, explicit string, schema filterspec.Snapshot) (string, error) {
	if explicit != "" {
		if !schema.Has(explicit) {
			return "", filterspec.UnknownColumnError(explicit)
		}
		return explicit, nil
	}
	columns := schema.ColumnNames()
	tiers := []func(col string) bool{
		func(col string) bool { return containsFold(e.Target.Exact, col) },
		func(col string) bool { return containsFold(e.Target.Synonyms, col) },
		func(col string) bool {
			lowered := strings.ToLower(col)
			for _, sub := range e.Target.Substrings {
				if strings.Contains(lowered, strings.ToLower(sub)) {
					return true
				}
			}
			return false
		},
	}
	for _, match := range tiers {
		var found []string
		for _, col := range columns {
			if match(col) {
				found = append(found, col)
			}
		}
		switch {
		case len(found) == 1:
			return found[0], nil
		case len(found) > 1:
			details := make([]filterspec.ErrorDetail, len(found))
			for i, col := range found {
				details[i] = filterspec.ErrorDetail{Column: col, Term: e.Key, Message: "candidate column"}
			}
			return "", filterspec.NewError(filterspec.CodeAmbiguousTerm,
				"term %s matches several columns: %s; set target_column", e.Key, strings.Join(found, ", ")).
				WithDetails(details...)
		}
	}
	expected := append(append([]string(nil), e.Target.Exact...), e.Target.Synonyms...)
	details := make([]filterspec.ErrorDetail, len(expected))
	for i, col := range expected {
		details[i] = filterspec.ErrorDetail{Column: col, Term: e.Key, Message: "expected column"}
	}
	return "", filterspec.NewError(filterspec.CodeMissingTargetColumn,
		"term %s needs one of the columns %s", e.Key, strings.Join(expected, ", ")).
		WithDetails(details...)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
