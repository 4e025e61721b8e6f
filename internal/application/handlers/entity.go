package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/ersonp/lore-state/internal/domain/services"
)

// EntityHandler handles entity queries at the application layer.
type EntityHandler struct {
	reader *services.Reader
}

// NewEntityHandler creates a new EntityHandler.
func NewEntityHandler(reader *services.Reader) *EntityHandler {
	return &EntityHandler{
		reader: reader,
	}
}

// EntityListResult contains the result of listing entities.
type EntityListResult struct {
	Entities []*entities.Entity `json:"entities"`
	Total    int                `json:"total"`
}

// EntityView is an entity with its state at one cycle.
type EntityView struct {
	Entity     *entities.Entity        `json:"entity"`
	Cycle      int                     `json:"cycle,omitempty"` // 0 means current
	Attributes []*entities.Attribute   `json:"attributes"`
	Details    *entities.EntityDetails `json:"details,omitempty"`
}

// HistoryResult lists every version of one attribute.
type HistoryResult struct {
	Entity   *entities.Entity      `json:"entity"`
	Key      string                `json:"key"`
	Versions []*entities.Attribute `json:"versions"`
}

// HandleList returns the active entities of a game, optionally of one type,
// with pagination.
func (h *EntityHandler) HandleList(ctx context.Context, gameID, typeName string, limit, offset int) (*EntityListResult, error) {
	var filter ports.EntityFilter
	if strings.TrimSpace(typeName) != "" {
		t, err := entities.ParseEntityType(typeName)
		if err != nil {
			return nil, err
		}
		filter.Type = t
	}

	all, err := h.reader.Entities(ctx, gameID, filter)
	if err != nil {
		return nil, err
	}

	filter.Limit = limit
	filter.Offset = offset
	page, err := h.reader.Entities(ctx, gameID, filter)
	if err != nil {
		return nil, err
	}

	return &EntityListResult{
		Entities: page,
		Total:    len(all),
	}, nil
}

// HandleShow resolves an entity and returns its attributes, as of cycle when
// cycle is positive.
func (h *EntityHandler) HandleShow(ctx context.Context, gameID, ref string, cycle int) (*EntityView, error) {
	entity, err := h.reader.FindEntity(ctx, gameID, ref)
	if err != nil {
		return nil, err
	}

	var attrs []*entities.Attribute
	if cycle > 0 {
		attrs, err = h.reader.GetAttributesAt(ctx, entity.ID, cycle)
	} else {
		attrs, err = h.reader.GetAttributes(ctx, entity.ID)
	}
	if err != nil {
		return nil, err
	}

	details, err := h.reader.Details(ctx, entity.ID)
	if err != nil {
		return nil, err
	}

	return &EntityView{
		Entity:     entity,
		Cycle:      cycle,
		Attributes: attrs,
		Details:    details,
	}, nil
}

// HandleHistory returns every version of one attribute of an entity.
func (h *EntityHandler) HandleHistory(ctx context.Context, gameID, ref, key string) (*HistoryResult, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: attribute key is required", entities.ErrInvalidValue)
	}

	entity, err := h.reader.FindEntity(ctx, gameID, ref)
	if err != nil {
		return nil, err
	}

	versions, err := h.reader.AttributeHistory(ctx, entity.ID, key)
	if err != nil {
		return nil, err
	}

	return &HistoryResult{
		Entity:   entity,
		Key:      strings.ToLower(strings.TrimSpace(key)),
		Versions: versions,
	}, nil
}
