package handlers

import (
	"context"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
)

// ContextHandler builds the narrator context snapshot.
type ContextHandler struct {
	assembler *services.ContextAssembler
}

// NewContextHandler creates a new context handler.
func NewContextHandler(assembler *services.ContextAssembler) *ContextHandler {
	return &ContextHandler{assembler: assembler}
}

// Handle returns the snapshot of a game for the given turn inputs.
func (h *ContextHandler) Handle(ctx context.Context, gameID string, in entities.TurnInputs) (*entities.ContextSnapshot, error) {
	return h.assembler.Build(ctx, gameID, in)
}
