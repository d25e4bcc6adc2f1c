package dictionary

import (
	"sort"

	"github.com/agnivade/levenshtein"

	"shipfilter/internal/filterspec"
)

// MaxSuggestions caps the candidates offered for an unknown term.
const MaxSuggestions = 3

// Suggest ranks expandable entries against an unresolved phrase. The score
// of an entry is the smallest edit distance between the normalized phrase
// and any of its normalized aliases; entries are ordered by (score, key)
// and the first three are returned. The result never depends on map order.
func (d *Dictionary) Suggest(phrase string) []filterspec.Suggestion {
	norm := Normalize(phrase)
	type scored struct {
		entry *Entry
		dist  int
	}
	var ranked []scored
	for _, e := range d.entries {
		if e.Tier == filterspec.TierC {
			continue
		}
		best := -1
		for _, alias := range append([]string{e.Key}, e.Aliases...) {
			dist := levenshtein.ComputeDistance(norm, Normalize(alias))
			if best < 0 || dist < best {
				best = dist
			}
		}
		ranked = append(ranked, scored{entry: e, dist: best})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].entry.Key < ranked[j].entry.Key
	})
	if len(ranked) > MaxSuggestions {
		ranked = ranked[:MaxSuggestions]
	}
	out := make([]filterspec.Suggestion, len(ranked))
	for i, s := range ranked {
		out[i] = filterspec.Suggestion{Key: s.entry.Key, Tier: s.entry.Tier, Description: s.entry.Description}
	}
	return out
}
