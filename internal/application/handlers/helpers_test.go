package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/mocks"
	"github.com/ersonp/lore-state/internal/domain/services"
	"github.com/ersonp/lore-state/internal/infrastructure/config"
	"github.com/ersonp/lore-state/internal/infrastructure/relationaldb/sqlite"
)

const testSeedJSON = `{
	"protagonist": {"name": "Kai Moreau", "data": {"attributes": {"occupation": "courier", "credits": 500}}},
	"locations": [{"name": "Rust Bar"}, {"name": "Eastern Docks"}],
	"characters": [{"name": "Mara Voss"}],
	"relations": [{"source_ref": "Mara Voss", "target_ref": "Rust Bar", "relation_type": "works_at"}],
	"start_location": "Rust Bar"
}`

// testEnv wires the services of one in-memory game.
type testEnv struct {
	repo      *sqlite.Repository
	llm       *mocks.TextGenerator
	populator *services.Populator
	reader    *services.Reader
	pipeline  *services.ExtractionPipeline
	assembler *services.ContextAssembler
	narrator  *services.Narrator
	game      *entities.Game
}

func setupEnv(t *testing.T, llm *mocks.TextGenerator) *testEnv {
	t.Helper()
	repo, err := sqlite.NewRepository(config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	require.NoError(t, repo.EnsureSchema(t.Context()))

	if llm == nil {
		llm = &mocks.TextGenerator{}
	}
	populator := services.NewPopulator(repo, nil, nil, services.DefaultPopulatorOptions(), nil)
	reader := services.NewReader(repo, nil, nil)
	pipeline := services.NewExtractionPipeline(llm, reader, populator, 2, nil)
	assembler := services.NewContextAssembler(repo, services.DefaultContextLimits(), nil)

	game, err := populator.CreateGame(t.Context(), "test")
	require.NoError(t, err)

	return &testEnv{
		repo:      repo,
		llm:       llm,
		populator: populator,
		reader:    reader,
		pipeline:  pipeline,
		assembler: assembler,
		narrator:  services.NewNarrator(llm, assembler, populator, pipeline, nil),
		game:      game,
	}
}

// seedWorld populates the game from testSeedJSON.
func (e *testEnv) seedWorld(t *testing.T) {
	t.Helper()
	seed := writeFile(t, "world.json", testSeedJSON)
	_, err := NewImportHandler(e.populator, e.reader, nil).HandleSeed(t.Context(), e.game.ID, seed, ImportOptions{})
	require.NoError(t, err)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
