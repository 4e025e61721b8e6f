package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
)

func TestNarrateHandler_Handle(t *testing.T) {
	t.Run("requires an LLM", func(t *testing.T) {
		_, err := NewNarrateHandler(nil).Handle(t.Context(), "g1", "look around", services.NarrateOptions{}, nil)
		assert.ErrorContains(t, err, "requires an LLM")
	})

	t.Run("streams and ingests", func(t *testing.T) {
		env := setupEnv(t, narrationLLM())
		env.seedWorld(t)

		var streamed string
		res, err := NewNarrateHandler(env.narrator).Handle(t.Context(), env.game.ID, "I order a drink",
			services.NarrateOptions{Ingest: true}, func(f string) error {
				streamed += f
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, "You lean on the bar.", streamed)
		assert.Equal(t, streamed, res.Text)
		require.NotNil(t, res.Pipeline)
		assert.Equal(t, 1, env.llm.CallCount(string(services.SubtaskSummary)))
	})
}

func TestContextHandler_Handle(t *testing.T) {
	env := setupEnv(t, nil)
	env.seedWorld(t)

	snap, err := NewContextHandler(env.assembler).Handle(t.Context(), env.game.ID, entities.TurnInputs{LocationName: "Rust Bar"})
	require.NoError(t, err)
	assert.Equal(t, env.game.ID, snap.GameID)
	assert.Equal(t, "Kai Moreau", snap.Protagonist.Name)
	assert.Equal(t, "Rust Bar", snap.CurrentLocation.Name)
	assert.Equal(t, 500, snap.Protagonist.Credits)
}
