package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/ersonp/lore-state/internal/domain/services"
)

// IndexHandler maintains the semantic fact index.
type IndexHandler struct {
	collections ports.CollectionManager
	populator   *services.Populator
	reader      *services.Reader
	vectorSize  uint64
}

// NewIndexHandler creates a new index handler.
func NewIndexHandler(collections ports.CollectionManager, populator *services.Populator, reader *services.Reader, vectorSize uint64) *IndexHandler {
	return &IndexHandler{
		collections: collections,
		populator:   populator,
		reader:      reader,
		vectorSize:  vectorSize,
	}
}

// RebuildResult counts the facts indexed per game.
type RebuildResult struct {
	Facts map[string]int `json:"facts"` // by game ID
	Total int            `json:"total"`
}

// HandleStatus returns the number of indexed facts.
func (h *IndexHandler) HandleStatus(ctx context.Context) (uint64, error) {
	if h.collections == nil {
		return 0, errors.New("semantic recall is disabled")
	}
	return h.collections.Count(ctx)
}

// HandleRebuild drops the collection and indexes the facts of every game
// again. The relational store is the source of truth, so nothing is lost.
func (h *IndexHandler) HandleRebuild(ctx context.Context) (*RebuildResult, error) {
	if h.collections == nil {
		return nil, errors.New("semantic recall is disabled")
	}
	if err := h.collections.DeleteCollection(ctx); err != nil {
		return nil, err
	}
	if err := h.collections.EnsureCollection(ctx, h.vectorSize); err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	games, err := h.reader.Games(ctx)
	if err != nil {
		return nil, err
	}

	result := &RebuildResult{Facts: make(map[string]int, len(games))}
	for _, g := range games {
		n, err := h.populator.ReindexFacts(ctx, g.ID)
		if err != nil {
			return result, fmt.Errorf("game %s: %w", g.Name, err)
		}
		result.Facts[g.ID] = n
		result.Total += n
	}
	return result, nil
}
