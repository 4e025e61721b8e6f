package handlers

import (
	"context"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
)

// RelationshipHandler handles relationship queries.
type RelationshipHandler struct {
	reader *services.Reader
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(reader *services.Reader) *RelationshipHandler {
	return &RelationshipHandler{
		reader: reader,
	}
}

// ListOptions configures relationship listing behavior.
type ListOptions struct {
	Types   []string // Filter by relationship type (empty = all)
	AtCycle int      // Versions valid at this cycle (0 = active)
}

// RelationshipInfo is a relationship with both of its entities.
type RelationshipInfo struct {
	Relationship *entities.Relationship `json:"relationship"`
	SourceEntity *entities.Entity       `json:"source"`
	TargetEntity *entities.Entity       `json:"target"`
}

// ListResult contains the result of listing relationships.
type ListResult struct {
	Entity        *entities.Entity   `json:"entity"`
	AtCycle       int                `json:"at_cycle,omitempty"`
	Relationships []RelationshipInfo `json:"relationships"`
}

// HandleList lists the relationships of an entity in either direction.
func (h *RelationshipHandler) HandleList(ctx context.Context, gameID, ref string, opts ListOptions) (*ListResult, error) {
	wanted := make(map[entities.RelationType]bool, len(opts.Types))
	for _, s := range opts.Types {
		t, err := entities.ParseRelationType(s)
		if err != nil {
			return nil, err
		}
		wanted[t] = true
	}

	entity, err := h.reader.FindEntity(ctx, gameID, ref)
	if err != nil {
		return nil, err
	}

	rels, err := h.reader.RelationsAt(ctx, entity.ID, opts.AtCycle)
	if err != nil {
		return nil, err
	}

	names := map[string]*entities.Entity{entity.ID: entity}
	lookup := func(id string) (*entities.Entity, error) {
		if e, ok := names[id]; ok {
			return e, nil
		}
		e, err := h.reader.Entity(ctx, id)
		if err != nil {
			return nil, err
		}
		names[id] = e
		return e, nil
	}

	result := &ListResult{
		Entity:        entity,
		AtCycle:       opts.AtCycle,
		Relationships: make([]RelationshipInfo, 0, len(rels)),
	}
	for _, rel := range rels {
		if len(wanted) > 0 && !wanted[rel.Type] {
			continue
		}
		source, err := lookup(rel.SourceEntityID)
		if err != nil {
			return nil, err
		}
		target, err := lookup(rel.TargetEntityID)
		if err != nil {
			return nil, err
		}
		result.Relationships = append(result.Relationships, RelationshipInfo{
			Relationship: rel,
			SourceEntity: source,
			TargetEntity: target,
		})
	}

	return result, nil
}
