package handlers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-state/internal/domain/mocks"
	"github.com/ersonp/lore-state/internal/domain/services"
)

func TestIndexHandler(t *testing.T) {
	env := setupEnv(t, nil)
	env.seedWorld(t)
	ctx := t.Context()

	path := writeFile(t, "turn.yaml", payloadYAML)
	_, err := NewImportHandler(env.populator, env.reader, nil).HandlePayload(ctx, env.game.ID, path, ImportOptions{Cycle: 2})
	require.NoError(t, err)

	index := &mocks.FactIndex{}
	embedder := &mocks.Embedder{EmbeddingResult: []float32{0.5}}
	populator := services.NewPopulator(env.repo, index, embedder, services.DefaultPopulatorOptions(), nil)

	t.Run("rebuild", func(t *testing.T) {
		manager := &mocks.CollectionManager{}
		h := NewIndexHandler(manager, populator, env.reader, 1536)

		res, err := h.HandleRebuild(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Total)
		assert.Equal(t, 1, res.Facts[env.game.ID])
		assert.Equal(t, 1, manager.DeleteCollectionCallCount)
		assert.Equal(t, uint64(1536), manager.LastVectorSize)
		assert.Len(t, index.Facts, 1)
	})

	t.Run("status", func(t *testing.T) {
		h := NewIndexHandler(&mocks.CollectionManager{Points: 7}, populator, env.reader, 1536)
		n, err := h.HandleStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), n)
	})

	t.Run("delete failure", func(t *testing.T) {
		h := NewIndexHandler(&mocks.CollectionManager{DeleteErr: errors.New("qdrant down")}, populator, env.reader, 1536)
		_, err := h.HandleRebuild(ctx)
		assert.Error(t, err)
	})

	t.Run("disabled", func(t *testing.T) {
		h := NewIndexHandler(nil, populator, env.reader, 0)
		_, err := h.HandleStatus(ctx)
		assert.Error(t, err)
		_, err = h.HandleRebuild(ctx)
		assert.Error(t, err)
	})
}
