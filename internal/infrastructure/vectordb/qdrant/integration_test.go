package qdrant

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/infrastructure/config"
)

const (
	testQdrantHost = "localhost"
	testQdrantPort = 6334
	testCollection = "lore_integration_test"
	testVectorSize = 4
)

// integrationRepo connects to a local Qdrant with a fresh collection.
// Set INTEGRATION_TEST=1 to run.
func integrationRepo(t *testing.T) *Repository {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "1" {
		t.Skip("set INTEGRATION_TEST=1 to run against a local Qdrant")
	}

	repo, err := NewRepository(config.QdrantConfig{
		Host:       testQdrantHost,
		Port:       testQdrantPort,
		Collection: testCollection,
	})
	require.NoError(t, err)

	ctx := t.Context()
	require.NoError(t, repo.DeleteCollection(ctx))
	require.NoError(t, repo.EnsureCollection(ctx, testVectorSize))

	t.Cleanup(func() {
		_ = repo.DeleteCollection(ctx)
		repo.Close()
	})
	return repo
}

func testFact(gameID string, cycle int, desc string) *entities.Fact {
	return &entities.Fact{
		ID:          uuid.NewString(),
		GameID:      gameID,
		Cycle:       cycle,
		Type:        entities.FactAction,
		Domain:      entities.DomainWorld,
		Description: desc,
		Importance:  3,
	}
}

func TestIntegration_IndexSearchRollback(t *testing.T) {
	repo := integrationRepo(t)
	ctx := t.Context()

	facts := []*entities.Fact{
		testFact("g1", 1, "Kai arrived at the docks"),
		testFact("g1", 3, "Kai stole the manifest"),
		testFact("g2", 1, "Another game entirely"),
	}
	embeddings := [][]float32{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{1, 0, 0, 0},
	}
	require.NoError(t, repo.IndexFacts(ctx, facts, embeddings))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	hits, err := repo.SearchFacts(ctx, "g1", []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, facts[0].ID, hits[0].FactID)
	assert.Equal(t, "Kai arrived at the docks", hits[0].Description)

	require.NoError(t, repo.DeleteFactsAfter(ctx, "g1", 2))

	hits, err = repo.SearchFacts(ctx, "g1", []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Cycle)

	// Other games are untouched.
	hits, err = repo.SearchFacts(ctx, "g2", []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestIntegration_EnsureCollectionIdempotent(t *testing.T) {
	repo := integrationRepo(t)
	ctx := t.Context()

	require.NoError(t, repo.EnsureCollection(ctx, testVectorSize))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
