package entities

import (
	"encoding/json"
	"fmt"
)

// EntityDetails is the type-specific row attached to every entity. It is
// created together with the entity and never re-created. Only the field
// matching the entity type is set.
type EntityDetails struct {
	EntityID     string               `json:"entity_id,omitempty"`
	Protagonist  *ProtagonistDetails  `json:"protagonist,omitempty"`
	Character    *CharacterDetails    `json:"character,omitempty"`
	Location     *LocationDetails     `json:"location,omitempty"`
	Object       *ObjectDetails       `json:"object,omitempty"`
	Organization *OrganizationDetails `json:"organization,omitempty"`
	AI           *AIDetails           `json:"ai,omitempty"`
}

type ProtagonistDetails struct {
	Origin          string `json:"origin,omitempty"`
	StartingCredits int    `json:"starting_credits,omitempty"`
}

type CharacterDetails struct {
	Species string `json:"species,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Role    string `json:"role,omitempty"`
}

// LocationDetails carries the sector used to find connected locations.
type LocationDetails struct {
	LocationType string `json:"location_type,omitempty"`
	Sector       string `json:"sector,omitempty"`
}

type ObjectDetails struct {
	ObjectType string `json:"object_type,omitempty"`
	Portable   bool   `json:"portable"`
}

type OrganizationDetails struct {
	OrgType string `json:"org_type,omitempty"`
	Sector  string `json:"sector,omitempty"`
}

type AIDetails struct {
	Designation string `json:"designation,omitempty"`
	Substrate   string `json:"substrate,omitempty"`
}

// DecodeDetails parses the type-specific blob of an entity. An empty blob
// yields the zero details for t.
func DecodeDetails(t EntityType, raw json.RawMessage) (EntityDetails, error) {
	d := EntityDetails{}
	var target any
	switch t {
	case EntityProtagonist:
		d.Protagonist = &ProtagonistDetails{}
		target = d.Protagonist
	case EntityCharacter:
		d.Character = &CharacterDetails{}
		target = d.Character
	case EntityLocation:
		d.Location = &LocationDetails{}
		target = d.Location
	case EntityObject:
		d.Object = &ObjectDetails{Portable: true}
		target = d.Object
	case EntityOrganization:
		d.Organization = &OrganizationDetails{}
		target = d.Organization
	case EntityAI:
		d.AI = &AIDetails{}
		target = d.AI
	default:
		return EntityDetails{}, fmt.Errorf("%w: %q", ErrInvalidEntityType, t)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return d, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return EntityDetails{}, fmt.Errorf("decoding %s details: %w", t, err)
	}
	return d, nil
}

// Validate checks that exactly the field for t is set.
func (d EntityDetails) Validate(t EntityType) error {
	set := map[EntityType]bool{
		EntityProtagonist:  d.Protagonist != nil,
		EntityCharacter:    d.Character != nil,
		EntityLocation:     d.Location != nil,
		EntityObject:       d.Object != nil,
		EntityOrganization: d.Organization != nil,
		EntityAI:           d.AI != nil,
	}
	for kind, ok := range set {
		if ok != (kind == t) {
			return fmt.Errorf("%w: details for %s do not match entity type %s", ErrInvalidValue, kind, t)
		}
	}
	return nil
}

// Sector returns the sector of a location or organization, if any.
func (d EntityDetails) Sector() string {
	switch {
	case d.Location != nil:
		return d.Location.Sector
	case d.Organization != nil:
		return d.Organization.Sector
	}
	return ""
}
