package tagparse

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/mutsucloud/otogi/pkg/types"
)

const defaultResolveThreshold = 0.82

// Roster resolves the free-form character references a model writes in media
// commands ("Rei", "rei_ayanami", a nickname, a misspelling) to canonical
// character IDs. Resolution tries exact ID and alias matches first, then
// falls back to Double Metaphone overlap ranked by Jaro-Winkler similarity.
//
// A Roster is read-only after construction and safe for concurrent use.
type Roster struct {
	characters []types.Character
	threshold  float64
}

// RosterOption is a functional option for configuring a Roster.
type RosterOption func(*Roster)

// WithResolveThreshold sets the minimum Jaro-Winkler score for a fuzzy match
// to be accepted. Default: 0.82.
func WithResolveThreshold(threshold float64) RosterOption {
	return func(r *Roster) {
		r.threshold = threshold
	}
}

// NewRoster builds a Roster over the configured characters.
func NewRoster(characters []types.Character, opts ...RosterOption) *Roster {
	r := &Roster{characters: characters, threshold: defaultResolveThreshold}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve maps raw to a canonical character ID. An empty raw or an empty
// roster resolves to fallback. Unresolvable references also fall back, so a
// hallucinated character never breaks media generation.
func (r *Roster) Resolve(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(r.characters) == 0 {
		return fallback
	}
	lower := strings.ToLower(raw)

	for _, c := range r.characters {
		if strings.ToLower(c.ID) == lower {
			return c.ID
		}
		if strings.ToLower(c.Name) == lower {
			return c.ID
		}
		for _, a := range c.Aliases {
			if strings.ToLower(a) == lower {
				return c.ID
			}
		}
	}

	if id := r.fuzzyResolve(lower); id != "" {
		return id
	}
	return fallback
}

// Get returns the character with the given canonical ID.
func (r *Roster) Get(id string) (types.Character, bool) {
	for _, c := range r.characters {
		if c.ID == id {
			return c, true
		}
	}
	return types.Character{}, false
}

// fuzzyResolve ranks all roster labels by Jaro-Winkler, requiring Double
// Metaphone overlap or a score past the threshold.
func (r *Roster) fuzzyResolve(lower string) string {
	rawPrimary, rawSecondary := matchr.DoubleMetaphone(lower)

	bestID := ""
	bestScore := 0.0
	for _, c := range r.characters {
		for _, label := range labelsFor(c) {
			score := matchr.JaroWinkler(lower, label, false)
			if score < r.threshold {
				continue
			}
			lp, ls := matchr.DoubleMetaphone(label)
			phonetic := codesMeet(rawPrimary, rawSecondary, lp, ls)
			// A phonetic hit outranks a pure string-similarity hit.
			if phonetic {
				score += 0.1
			}
			if score > bestScore {
				bestScore = score
				bestID = c.ID
			}
		}
	}
	return bestID
}

// labelsFor returns every lowercased label a character can be referenced by.
func labelsFor(c types.Character) []string {
	labels := make([]string, 0, len(c.Aliases)+2)
	labels = append(labels, strings.ToLower(c.ID), strings.ToLower(c.Name))
	for _, a := range c.Aliases {
		labels = append(labels, strings.ToLower(a))
	}
	return labels
}

// codesMeet reports whether any non-empty Double Metaphone code is shared.
func codesMeet(a1, a2, b1, b2 string) bool {
	for _, a := range []string{a1, a2} {
		if a == "" {
			continue
		}
		if a == b1 || (b2 != "" && a == b2) {
			return true
		}
	}
	return false
}
