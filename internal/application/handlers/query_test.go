package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-state/internal/domain/mocks"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/ersonp/lore-state/internal/domain/services"
)

func TestQueryHandler_Handle(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := t.Context()

	index := &mocks.FactIndex{Hits: []ports.FactHit{
		{FactID: "f1", Cycle: 2, Description: "Mara owes the syndicate", Importance: 4, Score: 0.91},
		{FactID: "f2", Cycle: 3, Description: "Kai paid Mara", Importance: 3, Score: 0.72},
	}}
	embedder := &mocks.Embedder{EmbeddingResult: []float32{0.1, 0.2}}
	h := NewQueryHandler(services.NewReader(env.repo, index, embedder))

	res, err := h.Handle(ctx, env.game.ID, "  who owes money? ", 1)
	require.NoError(t, err)
	assert.Equal(t, "who owes money?", res.Query)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "f1", res.Hits[0].FactID)
	assert.Equal(t, []string{"who owes money?"}, embedder.LastTexts)
	assert.Equal(t, 1, index.SearchCallCount)

	t.Run("empty query", func(t *testing.T) {
		_, err := h.Handle(ctx, env.game.ID, " ", 5)
		assert.Error(t, err)
	})

	t.Run("search failure", func(t *testing.T) {
		index := &mocks.FactIndex{Err: errors.New("unavailable")}
		h := NewQueryHandler(services.NewReader(env.repo, index, embedder))
		_, err := h.Handle(ctx, env.game.ID, "debts", 5)
		assert.ErrorContains(t, err, "searching facts")
	})

	t.Run("not configured", func(t *testing.T) {
		h := NewQueryHandler(env.reader)
		_, err := h.Handle(ctx, env.game.ID, "debts", 5)
		assert.ErrorContains(t, err, "not configured")
	})
}
