package handlers

import (
	"context"
	"errors"

	"github.com/ersonp/lore-state/internal/domain/services"
)

// NarrateHandler plays game turns.
type NarrateHandler struct {
	narrator *services.Narrator
}

// NewNarrateHandler creates a new narrate handler. narrator may be nil when
// no text generator is configured; Handle then fails.
func NewNarrateHandler(narrator *services.Narrator) *NarrateHandler {
	return &NarrateHandler{narrator: narrator}
}

// Handle narrates one player input, streaming fragments to onFragment.
func (h *NarrateHandler) Handle(ctx context.Context, gameID, input string, opts services.NarrateOptions, onFragment func(string) error) (*services.NarrationResult, error) {
	if h.narrator == nil {
		return nil, errors.New("narration requires an LLM")
	}
	return h.narrator.Narrate(ctx, gameID, input, opts, onFragment)
}
