package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/mocks"
)

func TestImportHandler_HandleSeed(t *testing.T) {
	env := setupEnv(t, nil)
	h := NewImportHandler(env.populator, env.reader, nil)
	ctx := t.Context()
	path := writeFile(t, "world.json", testSeedJSON)

	t.Run("dry run writes nothing", func(t *testing.T) {
		res, err := h.HandleSeed(ctx, env.game.ID, path, ImportOptions{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, "Kai Moreau", res.Seed.Protagonist.Name)
		assert.Zero(t, res.Stats.EntitiesCreated)

		names, err := env.reader.KnownEntityNames(ctx, env.game.ID)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("populates the game", func(t *testing.T) {
		res, err := h.HandleSeed(ctx, env.game.ID, path, ImportOptions{Format: "auto"})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Stats.EntitiesCreated)

		mara, err := env.reader.FindEntity(ctx, env.game.ID, "mara voss")
		require.NoError(t, err)
		assert.Equal(t, entities.EntityCharacter, mara.Type)
	})

	t.Run("explicit format", func(t *testing.T) {
		yamlPath := writeFile(t, "world.txt", "protagonist:\n  name: Ren\n")
		res, err := h.HandleSeed(ctx, env.game.ID, yamlPath, ImportOptions{Format: "yaml", DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, "Ren", res.Seed.Protagonist.Name)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := h.HandleSeed(ctx, env.game.ID, writeFile(t, "world.csv", "a,b"), ImportOptions{})
		assert.ErrorContains(t, err, "unsupported format")

		_, err = h.HandleSeed(ctx, env.game.ID, "/nonexistent/world.json", ImportOptions{})
		assert.Error(t, err)

		_, err = h.HandleSeed(ctx, env.game.ID, writeFile(t, "broken.json", "{"), ImportOptions{})
		assert.ErrorContains(t, err, "parsing file")
	})
}

func TestImportHandler_HandleGenerate(t *testing.T) {
	t.Run("requires an LLM", func(t *testing.T) {
		env := setupEnv(t, nil)
		_, err := NewImportHandler(env.populator, env.reader, nil).HandleGenerate(t.Context(), env.game.ID, "a port city")
		assert.ErrorContains(t, err, "requires an LLM")
	})

	t.Run("generates and populates", func(t *testing.T) {
		env := setupEnv(t, &mocks.TextGenerator{Responses: map[string]string{"world": testSeedJSON}})
		h := NewImportHandler(env.populator, env.reader, env.narrator)

		res, err := h.HandleGenerate(t.Context(), env.game.ID, "a port city")
		require.NoError(t, err)
		assert.Equal(t, "Kai Moreau", res.Seed.Protagonist.Name)
		assert.Equal(t, 4, res.Stats.EntitiesCreated)
		assert.Equal(t, 1, env.llm.CallCount("world"))
	})
}

const payloadYAML = `
facts:
  - fact_type: transaction
    domain: financial
    description: Kai paid Mara for the tip
    importance: 3
    participants:
      - entity_ref: Mara Voss
        role: payee
segment_summary: Kai paid for information.
`

func TestImportHandler_HandlePayload(t *testing.T) {
	env := setupEnv(t, nil)
	env.seedWorld(t)
	h := NewImportHandler(env.populator, env.reader, nil)
	ctx := t.Context()
	path := writeFile(t, "turn.yaml", payloadYAML)

	t.Run("dry run validates", func(t *testing.T) {
		res, err := h.HandlePayload(ctx, env.game.ID, path, ImportOptions{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Cycle, "falls back to the current cycle")
		assert.Empty(t, res.Errors)
		assert.False(t, res.Degraded)
	})

	t.Run("dry run reports invalid items", func(t *testing.T) {
		bad := writeFile(t, "bad.json", `{"facts":[{"fact_type":"transaction","domain":"financial","description":"no importance"}]}`)
		res, err := h.HandlePayload(ctx, env.game.ID, bad, ImportOptions{DryRun: true})
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.NotEmpty(t, res.Errors)
	})

	t.Run("applies at the requested cycle", func(t *testing.T) {
		res, err := h.HandlePayload(ctx, env.game.ID, path, ImportOptions{Cycle: 3})
		require.NoError(t, err)
		assert.Equal(t, 3, res.Cycle)
		assert.Equal(t, 1, res.Stats.FactsCreated)

		game, err := env.reader.Game(ctx, env.game.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, game.CurrentCycle)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := h.HandlePayload(ctx, env.game.ID, path, ImportOptions{Format: "xml"})
		assert.ErrorContains(t, err, "unsupported format")
	})
}
