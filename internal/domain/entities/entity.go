package entities

import (
	"fmt"
	"strings"
	"time"
)

// EntityType is the kind of a world entity. It is fixed at creation and
// decides which attribute keys and which details row the entity may carry.
type EntityType string

const (
	EntityProtagonist  EntityType = "protagonist"
	EntityCharacter    EntityType = "character"
	EntityLocation     EntityType = "location"
	EntityObject       EntityType = "object"
	EntityOrganization EntityType = "organization"
	EntityAI           EntityType = "ai"
)

// EntityTypes lists every supported entity type.
var EntityTypes = []EntityType{
	EntityProtagonist,
	EntityCharacter,
	EntityLocation,
	EntityObject,
	EntityOrganization,
	EntityAI,
}

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEntityType converts free text into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(NormalizeName(s))
	switch t {
	case "npc", "person":
		t = EntityCharacter
	case "place":
		t = EntityLocation
	case "item":
		t = EntityObject
	case "faction", "org", "company":
		t = EntityOrganization
	}
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, s)
	}
	return t, nil
}

// Entity is a named subject of the world: a character, a place, an item.
// Entities are never physically deleted; RemovedCycle marks a soft delete.
type Entity struct {
	ID             string     `json:"id"`
	GameID         string     `json:"game_id"`
	Type           EntityType `json:"type"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalized_name"`
	Aliases        []string   `json:"aliases,omitempty"`
	Known          bool       `json:"known"`
	UnknownAlias   string     `json:"unknown_alias,omitempty"` // shown while Known is false
	CreatedCycle   int        `json:"created_cycle"`
	RemovedCycle   *int       `json:"removed_cycle,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Active reports whether the entity has not been removed.
func (e *Entity) Active() bool {
	return e.RemovedCycle == nil
}

// DisplayName returns the name the protagonist would use for the entity.
func (e *Entity) DisplayName() string {
	if !e.Known && e.UnknownAlias != "" {
		return e.UnknownAlias
	}
	return e.Name
}

// NormalizeName converts a name to lowercase for case-insensitive matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// normalizeIdent turns "Friend Of" or "friend-of" into "friend_of".
func normalizeIdent(s string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(NormalizeName(s))
}
