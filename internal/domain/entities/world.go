package entities

// WorldSeed is a full world description used to populate a new game at
// cycle 1. It comes from the world generator or from a seed file.
type WorldSeed struct {
	Protagonist   EntityCreated       `json:"protagonist"`
	AI            *EntityCreated      `json:"ai,omitempty"`
	Locations     []EntityCreated     `json:"locations"`
	Characters    []EntityCreated     `json:"characters"`
	Organizations []EntityCreated     `json:"organizations"`
	Objects       []EntityCreated     `json:"objects"`
	Relations     []RelationSpec      `json:"relations"`
	Commitments   []CommitmentCreated `json:"commitments"`
	Events        []EventScheduled    `json:"events,omitempty"`
	StartLocation string              `json:"start_location,omitempty"`
	Summary       string              `json:"summary,omitempty"`
}

// Entities returns every entity of the seed in creation order: the
// protagonist, the AI, then locations, organizations, characters and objects.
// Items without an entity_type take the type of the list they appear in.
func (s *WorldSeed) Entities() []EntityCreated {
	out := []EntityCreated{withType(s.Protagonist, EntityProtagonist)}
	if s.AI != nil {
		out = append(out, withType(*s.AI, EntityAI))
	}
	for _, group := range []struct {
		items []EntityCreated
		t     EntityType
	}{
		{s.Locations, EntityLocation},
		{s.Organizations, EntityOrganization},
		{s.Characters, EntityCharacter},
		{s.Objects, EntityObject},
	} {
		for _, e := range group.items {
			out = append(out, withType(e, group.t))
		}
	}
	return out
}

func withType(e EntityCreated, t EntityType) EntityCreated {
	if e.EntityType == "" {
		e.EntityType = string(t)
	}
	return e
}
