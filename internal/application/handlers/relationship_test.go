package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

func TestRelationshipHandler_HandleList(t *testing.T) {
	env := setupEnv(t, nil)
	env.seedWorld(t)
	h := NewRelationshipHandler(env.reader)
	ctx := t.Context()

	t.Run("filtered by type", func(t *testing.T) {
		res, err := h.HandleList(ctx, env.game.ID, "Rust Bar", ListOptions{Types: []string{"works_at"}})
		require.NoError(t, err)
		assert.Equal(t, "Rust Bar", res.Entity.Name)
		require.Len(t, res.Relationships, 1)

		info := res.Relationships[0]
		assert.Equal(t, entities.RelationWorksAt, info.Relationship.Type)
		assert.Equal(t, "Mara Voss", info.SourceEntity.Name)
		assert.Equal(t, "Rust Bar", info.TargetEntity.Name)
	})

	t.Run("either direction", func(t *testing.T) {
		res, err := h.HandleList(ctx, env.game.ID, "Mara Voss", ListOptions{})
		require.NoError(t, err)
		require.NotEmpty(t, res.Relationships)
		for _, info := range res.Relationships {
			ids := []string{info.SourceEntity.ID, info.TargetEntity.ID}
			assert.Contains(t, ids, res.Entity.ID)
		}
	})

	t.Run("at a cycle", func(t *testing.T) {
		res, err := h.HandleList(ctx, env.game.ID, "Mara Voss", ListOptions{Types: []string{"works_at"}, AtCycle: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, res.AtCycle)
		assert.Len(t, res.Relationships, 1)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := h.HandleList(ctx, env.game.ID, "Mara Voss", ListOptions{Types: []string{"teleports_to"}})
		assert.Error(t, err)
	})

	t.Run("unknown entity", func(t *testing.T) {
		_, err := h.HandleList(ctx, env.game.ID, "Nobody At All", ListOptions{})
		assert.Error(t, err)
	})
}
