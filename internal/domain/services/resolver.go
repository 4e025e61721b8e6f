package services

import (
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

// DefaultSimilarityFloor is the minimum fuzzy score for a reference to resolve.
const DefaultSimilarityFloor = 0.8

const prefixScore = 0.9

// ResolveStatus is the outcome of resolving an entity reference.
type ResolveStatus int

const (
	NotFound ResolveStatus = iota
	Resolved
	Ambiguous
)

func (s ResolveStatus) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// MatchTier ranks how a candidate matched, best first.
type MatchTier int

const (
	TierExact MatchTier = iota
	TierAlias
	TierPrefix
	TierFuzzy
)

// Resolution is the result of ResolveEntityRef. Entity is set only when
// Status is Resolved; Candidates lists the tied entities when Ambiguous.
type Resolution struct {
	Status     ResolveStatus
	Entity     *entities.Entity
	Tier       MatchTier
	Score      float64
	Candidates []*entities.Entity
}

// Err converts a non-resolved outcome into an error for per-item reporting.
func (r Resolution) Err(ref string) error {
	switch r.Status {
	case Resolved:
		return nil
	case Ambiguous:
		names := make([]string, 0, len(r.Candidates))
		for _, c := range r.Candidates {
			names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.Type))
		}
		return fmt.Errorf("%w: %q matches %s", entities.ErrAmbiguousReference, ref, strings.Join(names, ", "))
	default:
		return fmt.Errorf("%w: %q", entities.ErrEntityNotFound, ref)
	}
}

type candidate struct {
	entity *entities.Entity
	tier   MatchTier
	score  float64
}

// ResolveEntityRef ranks the active candidates against ref: exact name, then
// alias, then name prefix, then normalized edit similarity on accent-folded
// names. Only the best tier is kept. Within it the highest score wins and
// ties go to the most recently created entity. When expectedType is empty and
// the best candidates span several entity types the reference is ambiguous.
func ResolveEntityRef(candidates []*entities.Entity, ref string, expectedType entities.EntityType, floor float64) Resolution {
	if floor <= 0 {
		floor = DefaultSimilarityFloor
	}
	needle := entities.FoldName(entities.NormalizeName(ref))
	if needle == "" {
		return Resolution{Status: NotFound}
	}

	var matches []candidate
	for _, e := range candidates {
		if !e.Active() {
			continue
		}
		if expectedType != "" && e.Type != expectedType {
			continue
		}
		if c, ok := matchEntity(e, needle, floor); ok {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return Resolution{Status: NotFound}
	}

	best := matches[0]
	for _, c := range matches[1:] {
		if better(c, best) {
			best = c
		}
	}

	// Only exact ties within the best tier compete for ambiguity.
	var tied []*entities.Entity
	types := map[entities.EntityType]bool{}
	for _, c := range matches {
		if c.tier == best.tier && c.score == best.score {
			tied = append(tied, c.entity)
			types[c.entity.Type] = true
		}
	}
	if expectedType == "" && len(types) > 1 {
		return Resolution{Status: Ambiguous, Tier: best.tier, Score: best.score, Candidates: tied}
	}
	return Resolution{Status: Resolved, Entity: best.entity, Tier: best.tier, Score: best.score}
}

func better(a, b candidate) bool {
	if a.tier != b.tier {
		return a.tier < b.tier
	}
	if a.score != b.score {
		return a.score > b.score
	}
	if a.entity.CreatedCycle != b.entity.CreatedCycle {
		return a.entity.CreatedCycle > b.entity.CreatedCycle
	}
	return a.entity.CreatedAt.After(b.entity.CreatedAt)
}

func matchEntity(e *entities.Entity, needle string, floor float64) (candidate, bool) {
	name := entities.FoldName(e.NormalizedName)
	if name == "" {
		name = entities.FoldName(entities.NormalizeName(e.Name))
	}
	if name == needle {
		return candidate{entity: e, tier: TierExact, score: 1}, true
	}

	aliases := make([]string, 0, len(e.Aliases)+1)
	for _, a := range e.Aliases {
		aliases = append(aliases, entities.FoldName(entities.NormalizeName(a)))
	}
	if e.UnknownAlias != "" {
		aliases = append(aliases, entities.FoldName(entities.NormalizeName(e.UnknownAlias)))
	}
	for _, a := range aliases {
		if a == needle {
			return candidate{entity: e, tier: TierAlias, score: 1}, true
		}
	}

	if isWordPrefix(name, needle) || isWordPrefix(needle, name) {
		return candidate{entity: e, tier: TierPrefix, score: prefixScore}, true
	}
	for _, a := range aliases {
		if isWordPrefix(a, needle) {
			return candidate{entity: e, tier: TierPrefix, score: prefixScore}, true
		}
	}

	score := similarity(name, needle)
	for _, a := range aliases {
		score = max(score, similarity(a, needle))
	}
	if score >= floor {
		return candidate{entity: e, tier: TierFuzzy, score: score}, true
	}
	return candidate{}, false
}

// isWordPrefix reports whether prefix starts s at a word boundary, so "mara"
// matches "mara voss" but "mar" does not.
func isWordPrefix(s, prefix string) bool {
	if len(prefix) == 0 || len(prefix) >= len(s) || !strings.HasPrefix(s, prefix) {
		return false
	}
	return s[len(prefix)] == ' '
}

// similarity is 1 - levenshtein(a, b) / max(len(a), len(b)), over runes.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
