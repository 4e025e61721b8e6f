package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/ersonp/lore-state/internal/infrastructure/config"
)

func openFileRepo(t *testing.T, dbPath string) *Repository {
	t.Helper()
	repo, err := NewRepository(config.SQLiteConfig{Path: dbPath})
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestFileDatabase_Persists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file database test in short mode")
	}

	dbPath := filepath.Join(t.TempDir(), ".lore", "lore.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(dbPath), 0o755))
	ctx := context.Background()

	repo := openFileRepo(t, dbPath)
	game := setupTestGame(t, repo)
	mara := createEntity(t, repo, game.ID, entities.EntityCharacter, "Mara Voss", 1)
	require.NoError(t, repo.Close())

	_, err := os.Stat(dbPath)
	require.NoError(t, err, "database file should exist")

	// Reopening runs the schema again on an existing database.
	repo2 := openFileRepo(t, dbPath)
	defer repo2.Close()

	games, err := repo2.ListGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, game.ID, games[0].ID)

	found, err := repo2.FindEntityByID(ctx, mara.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Mara Voss", found.Name)
}

func TestFileDatabase_ConcurrentReads(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file database test in short mode")
	}

	repo := openFileRepo(t, filepath.Join(t.TempDir(), "concurrent.db"))
	defer repo.Close()

	game := setupTestGame(t, repo)
	for i := 0; i < 50; i++ {
		createEntity(t, repo, game.ID, entities.EntityLocation, fmt.Sprintf("Pier %d", i), 1)
	}

	errCh := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			list, err := repo.ListEntities(context.Background(), game.ID, ports.EntityFilter{})
			if err != nil {
				errCh <- err
				return
			}
			if len(list) != 50 {
				errCh <- fmt.Errorf("expected 50 entities, got %d", len(list))
				return
			}
			errCh <- nil
		}()
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, <-errCh)
	}
}
