// Package entities contains core domain data structures.
package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// FactType represents the category of a fact.
type FactType string

const (
	FactAction      FactType = "action"
	FactDialogue    FactType = "dialogue"
	FactDiscovery   FactType = "discovery"
	FactEncounter   FactType = "encounter"
	FactDecision    FactType = "decision"
	FactStateChange FactType = "state_change"
	FactRevelation  FactType = "revelation"
	FactTransaction FactType = "transaction"
)

// FactDomain is the part of the protagonist's life a fact belongs to.
type FactDomain string

const (
	DomainPersonal     FactDomain = "personal"
	DomainSocial       FactDomain = "social"
	DomainProfessional FactDomain = "professional"
	DomainRomantic     FactDomain = "romantic"
	DomainFinancial    FactDomain = "financial"
	DomainWorld        FactDomain = "world"
)

var (
	factTypes   = []FactType{FactAction, FactDialogue, FactDiscovery, FactEncounter, FactDecision, FactStateChange, FactRevelation, FactTransaction}
	factDomains = []FactDomain{DomainPersonal, DomainSocial, DomainProfessional, DomainRomantic, DomainFinancial, DomainWorld}
)

// IsValid reports whether t is a known fact type.
func (t FactType) IsValid() bool {
	for _, known := range factTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsValid reports whether d is a known fact domain.
func (d FactDomain) IsValid() bool {
	for _, known := range factDomains {
		if d == known {
			return true
		}
	}
	return false
}

const (
	ImportanceMin = 1
	ImportanceMax = 5
)

// FactParticipant is an entity taking part in a fact, in order.
type FactParticipant struct {
	EntityID string `json:"entity_id"`
	Role     string `json:"role"`
}

// Fact is an immutable record of something that happened during a cycle.
type Fact struct {
	ID           string            `json:"id"`
	GameID       string            `json:"game_id"`
	Cycle        int               `json:"cycle"`
	Type         FactType          `json:"type"`
	Domain       FactDomain        `json:"domain"`
	Description  string            `json:"description"`
	Importance   int               `json:"importance"`
	LocationID   string            `json:"location_id,omitempty"`
	SemanticKey  string            `json:"semantic_key"`
	Participants []FactParticipant `json:"participants,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Validate checks the fields the store relies on.
func (f *Fact) Validate() error {
	if f.Cycle < 1 {
		return fmt.Errorf("%w: fact cycle %d", ErrInvalidCycle, f.Cycle)
	}
	if !f.Type.IsValid() {
		return fmt.Errorf("%w: fact type %q", ErrInvalidValue, f.Type)
	}
	if !f.Domain.IsValid() {
		return fmt.Errorf("%w: fact domain %q", ErrInvalidValue, f.Domain)
	}
	if strings.TrimSpace(f.Description) == "" {
		return fmt.Errorf("%w: fact description is empty", ErrInvalidValue)
	}
	if f.Importance < ImportanceMin || f.Importance > ImportanceMax {
		return fmt.Errorf("%w: importance %d out of range", ErrInvalidValue, f.Importance)
	}
	return nil
}

// SemanticKey derives the dedup key of a fact from its type and description.
// Two phrasings differing only in case, punctuation or spacing share a key.
func SemanticKey(t FactType, description string) string {
	var b strings.Builder
	space := false
	for _, r := range FoldName(description) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
		default:
			space = true
		}
	}
	sum := sha256.Sum256([]byte(string(t) + "|" + b.String()))
	return hex.EncodeToString(sum[:8])
}
