package entities

import "fmt"

// RelationType defines the kind of relationship between entities.
type RelationType string

const (
	RelationKnows       RelationType = "knows"
	RelationFriendOf    RelationType = "friend_of"
	RelationRomantic    RelationType = "romantic"
	RelationFamily      RelationType = "family"
	RelationRival       RelationType = "rival"
	RelationEnemy       RelationType = "enemy"
	RelationColleagueOf RelationType = "colleague_of"

	RelationEmployedBy RelationType = "employed_by"
	RelationWorksAt    RelationType = "works_at"
	RelationMemberOf   RelationType = "member_of"
	RelationManages    RelationType = "manages"

	RelationLivesAt     RelationType = "lives_at"
	RelationFrequents   RelationType = "frequents"
	RelationLocatedIn   RelationType = "located_in"
	RelationConnectedTo RelationType = "connected_to"

	RelationOwns RelationType = "owns"
)

// RelationCategory groups relation types that share extension attributes.
type RelationCategory string

const (
	CategorySocial       RelationCategory = "social"
	CategoryProfessional RelationCategory = "professional"
	CategorySpatial      RelationCategory = "spatial"
	CategoryOwnership    RelationCategory = "ownership"
)

var relationCategories = map[RelationType]RelationCategory{
	RelationKnows:       CategorySocial,
	RelationFriendOf:    CategorySocial,
	RelationRomantic:    CategorySocial,
	RelationFamily:      CategorySocial,
	RelationRival:       CategorySocial,
	RelationEnemy:       CategorySocial,
	RelationColleagueOf: CategorySocial,
	RelationEmployedBy:  CategoryProfessional,
	RelationWorksAt:     CategoryProfessional,
	RelationMemberOf:    CategoryProfessional,
	RelationManages:     CategoryProfessional,
	RelationLivesAt:     CategorySpatial,
	RelationFrequents:   CategorySpatial,
	RelationLocatedIn:   CategorySpatial,
	RelationConnectedTo: CategorySpatial,
	RelationOwns:        CategoryOwnership,
}

// Category returns the category of t, or "" for an unknown type.
func (t RelationType) Category() RelationCategory {
	return relationCategories[t]
}

// IsValid reports whether t is a known relation type.
func (t RelationType) IsValid() bool {
	_, ok := relationCategories[t]
	return ok
}

// ParseRelationType converts free text into a RelationType.
func ParseRelationType(s string) (RelationType, error) {
	t := RelationType(normalizeIdent(s))
	switch t {
	case "friend", "friends", "friends_with":
		t = RelationFriendOf
	case "colleague", "coworker":
		t = RelationColleagueOf
	case "works_for":
		t = RelationEmployedBy
	case "lives_in":
		t = RelationLivesAt
	case "connected", "adjacent_to":
		t = RelationConnectedTo
	}
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRelationType, s)
	}
	return t, nil
}

const (
	RelationLevelMin = -100
	RelationLevelMax = 100
)

// SocialAttrs extends social relations.
type SocialAttrs struct {
	Level   *int   `json:"level,omitempty"`
	Context string `json:"context,omitempty"`
}

// ProfessionalAttrs extends professional relations.
type ProfessionalAttrs struct {
	Position string `json:"position,omitempty"`
	Schedule string `json:"schedule,omitempty"`
}

// SpatialAttrs extends spatial relations.
type SpatialAttrs struct {
	Regularity string `json:"regularity,omitempty"`
}

// OwnershipAttrs extends ownership relations.
type OwnershipAttrs struct {
	Quantity    int    `json:"quantity"`
	Acquisition string `json:"acquisition,omitempty"`
}

// RelationAttributes holds the extension row of a relation. Only the field
// matching the relation's category is set.
type RelationAttributes struct {
	Social       *SocialAttrs       `json:"social,omitempty"`
	Professional *ProfessionalAttrs `json:"professional,omitempty"`
	Spatial      *SpatialAttrs      `json:"spatial,omitempty"`
	Ownership    *OwnershipAttrs    `json:"ownership,omitempty"`
}

// ForCategory keeps only the extension for c, filling a zero row when absent
// and applying the category's defaults and bounds.
func (a RelationAttributes) ForCategory(c RelationCategory) (RelationAttributes, error) {
	out := RelationAttributes{}
	switch c {
	case CategorySocial:
		s := SocialAttrs{}
		if a.Social != nil {
			s = *a.Social
		}
		if s.Level != nil {
			level := max(RelationLevelMin, min(RelationLevelMax, *s.Level))
			s.Level = &level
		}
		out.Social = &s
	case CategoryProfessional:
		p := ProfessionalAttrs{}
		if a.Professional != nil {
			p = *a.Professional
		}
		out.Professional = &p
	case CategorySpatial:
		s := SpatialAttrs{}
		if a.Spatial != nil {
			s = *a.Spatial
		}
		out.Spatial = &s
	case CategoryOwnership:
		o := OwnershipAttrs{Quantity: 1}
		if a.Ownership != nil {
			o = *a.Ownership
		}
		if o.Quantity < 0 {
			return RelationAttributes{}, fmt.Errorf("%w: negative quantity %d", ErrInvalidValue, o.Quantity)
		}
		if o.Quantity == 0 {
			o.Quantity = 1
		}
		out.Ownership = &o
	default:
		return RelationAttributes{}, fmt.Errorf("%w: unknown category %q", ErrInvalidRelationType, c)
	}
	return out, nil
}

// Level returns the social level, or nil when unset or not social.
func (a RelationAttributes) Level() *int {
	if a.Social == nil {
		return nil
	}
	return a.Social.Level
}

// Relationship is one version of a directed relation between two entities.
type Relationship struct {
	ID                 string             `json:"id"`
	GameID             string             `json:"game_id"`
	SourceEntityID     string             `json:"source_entity_id"`
	TargetEntityID     string             `json:"target_entity_id"`
	Type               RelationType       `json:"type"`
	KnownByProtagonist bool               `json:"known_by_protagonist"`
	StartCycle         int                `json:"start_cycle"`
	EndCycle           *int               `json:"end_cycle,omitempty"`
	ClosedCycle        *int               `json:"closed_cycle,omitempty"`
	SupersededBy       string             `json:"superseded_by,omitempty"`
	Attributes         RelationAttributes `json:"attributes"`
}

// Category returns the category of the relation's type.
func (r *Relationship) Category() RelationCategory {
	return r.Type.Category()
}

// Active reports whether this is the current version of the relation.
func (r *Relationship) Active() bool {
	return r.EndCycle == nil
}
