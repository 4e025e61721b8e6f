package handlers

import (
	"context"
	"fmt"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
)

// lastTurnWindow bounds the messages scanned for the last player turn.
const lastTurnWindow = 50

// RollbackHandler undoes world changes back to a message.
type RollbackHandler struct {
	populator *services.Populator
	reader    *services.Reader
}

// NewRollbackHandler creates a new rollback handler.
func NewRollbackHandler(populator *services.Populator, reader *services.Reader) *RollbackHandler {
	return &RollbackHandler{
		populator: populator,
		reader:    reader,
	}
}

// Handle rolls a game back to messageID, removing the message too when
// includeMessage is set.
func (h *RollbackHandler) Handle(ctx context.Context, gameID, messageID string, includeMessage bool) (*services.RollbackStats, error) {
	return h.populator.RollbackToMessage(ctx, gameID, messageID, includeMessage)
}

// HandleLastTurn removes the latest player message and everything after it.
func (h *RollbackHandler) HandleLastTurn(ctx context.Context, gameID string) (*services.RollbackStats, error) {
	msgs, err := h.reader.Messages(ctx, gameID, lastTurnWindow)
	if err != nil {
		return nil, err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == entities.RoleUser {
			return h.populator.RollbackToMessage(ctx, gameID, msgs[i].ID, true)
		}
	}
	return nil, fmt.Errorf("%w: no player turn in game %s", entities.ErrMessageNotFound, gameID)
}

// HandleMessages lists the latest messages of a game, oldest first.
func (h *RollbackHandler) HandleMessages(ctx context.Context, gameID string, limit int) ([]*entities.Message, error) {
	return h.reader.Messages(ctx, gameID, limit)
}
