package services

import (
	"errors"
	"testing"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/mocks"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_History(t *testing.T) {
	repo, game := setupTestStore(t)
	ctx := t.Context()
	p := NewPopulator(repo, nil, nil, DefaultPopulatorOptions(), nil)
	r := NewReader(repo, nil, nil)

	mara, err := p.CreateEntity(ctx, game.ID, EntityInput{
		Type: entities.EntityCharacter, Name: "Mara Voss", Aliases: []string{"Red"},
	}, 1)
	require.NoError(t, err)
	bar, err := p.CreateEntity(ctx, game.ID, EntityInput{Type: entities.EntityLocation, Name: "Rust Bar"}, 1)
	require.NoError(t, err)

	_, err = p.SetAttribute(ctx, mara.ID, "occupation", entities.StringValue("Barista"), 2)
	require.NoError(t, err)
	_, err = p.SetAttribute(ctx, mara.ID, "occupation", entities.StringValue("Smuggler"), 5)
	require.NoError(t, err)
	_, err = p.CreateRelation(ctx, game.ID, RelationInput{SourceID: mara.ID, TargetID: bar.ID, Type: entities.RelationWorksAt}, 2)
	require.NoError(t, err)
	_, err = p.EndRelation(ctx, game.ID, mara.ID, bar.ID, entities.RelationWorksAt, 5)
	require.NoError(t, err)

	t.Run("find entity by alias", func(t *testing.T) {
		e, err := r.FindEntity(ctx, game.ID, " red ")
		require.NoError(t, err)
		assert.Equal(t, mara.ID, e.ID)

		_, err = r.FindEntity(ctx, game.ID, "Nobody")
		assert.ErrorIs(t, err, entities.ErrEntityNotFound)
	})

	t.Run("attributes at a cycle", func(t *testing.T) {
		tests := []struct {
			cycle int
			want  string
		}{
			{1, ""},
			{2, "barista"},
			{4, "barista"},
			{5, "smuggler"},
			{9, "smuggler"},
		}
		for _, tt := range tests {
			attrs, err := r.GetAttributesAt(ctx, mara.ID, tt.cycle)
			require.NoError(t, err)
			got := ""
			for _, a := range attrs {
				if a.Key == entities.AttrOccupation {
					got = a.Value.Str
				}
			}
			assert.Equal(t, tt.want, got, "cycle %d", tt.cycle)
		}

		_, err := r.GetAttributesAt(ctx, mara.ID, 0)
		assert.ErrorIs(t, err, entities.ErrInvalidCycle)
	})

	t.Run("attribute history", func(t *testing.T) {
		history, err := r.AttributeHistory(ctx, mara.ID, " Occupation ")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "barista", history[0].Value.Str)
		assert.Equal(t, 4, *history[0].EndCycle)
		assert.Equal(t, history[1].ID, history[0].SupersededBy)
	})

	t.Run("relations at a cycle", func(t *testing.T) {
		at3, err := r.RelationsAt(ctx, mara.ID, 3)
		require.NoError(t, err)
		assert.Len(t, at3, 1)

		active, err := r.RelationsAt(ctx, mara.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("games and entities", func(t *testing.T) {
		games, err := r.Games(ctx)
		require.NoError(t, err)
		assert.Len(t, games, 1)

		_, err = r.Game(ctx, "missing")
		assert.ErrorIs(t, err, entities.ErrGameNotFound)

		locations, err := r.Entities(ctx, game.ID, ports.EntityFilter{Type: entities.EntityLocation})
		require.NoError(t, err)
		require.Len(t, locations, 1)
		assert.Equal(t, "Rust Bar", locations[0].Name)

		names, err := r.KnownEntityNames(ctx, game.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Mara Voss", "Rust Bar"}, names)
	})
}

func TestReader_SearchFacts(t *testing.T) {
	repo, game := setupTestStore(t)
	ctx := t.Context()

	t.Run("not configured", func(t *testing.T) {
		_, err := NewReader(repo, nil, nil).SearchFacts(ctx, game.ID, "debt", 5)
		assert.Error(t, err)
	})

	t.Run("embeds the query and searches the index", func(t *testing.T) {
		index := &mocks.FactIndex{Hits: []ports.FactHit{
			{FactID: "f1", Description: "Mara owes money", Score: 0.9},
			{FactID: "f2", Description: "Kai paid rent", Score: 0.5},
		}}
		embedder := &mocks.Embedder{EmbeddingResult: []float32{0.1, 0.2}}
		r := NewReader(repo, index, embedder)

		hits, err := r.SearchFacts(ctx, game.ID, "debt", 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "f1", hits[0].FactID)
		assert.Equal(t, []string{"debt"}, embedder.LastTexts)
		assert.Equal(t, 1, index.SearchCallCount)
	})

	t.Run("embedding failure", func(t *testing.T) {
		embedder := &mocks.Embedder{Err: errors.New("quota")}
		_, err := NewReader(repo, &mocks.FactIndex{}, embedder).SearchFacts(ctx, game.ID, "debt", 0)
		assert.ErrorContains(t, err, "quota")
	})
}

func TestReader_EntityAndDetails(t *testing.T) {
	repo, game := setupTestStore(t)
	ctx := t.Context()
	p := NewPopulator(repo, nil, nil, DefaultPopulatorOptions(), nil)
	r := NewReader(repo, nil, nil)

	mara, err := p.CreateEntity(ctx, game.ID, EntityInput{Type: entities.EntityCharacter, Name: "Mara Voss"}, 1)
	require.NoError(t, err)
	require.NoError(t, p.RemoveEntity(ctx, mara.ID, 3))

	t.Run("removed entities are still found by ID", func(t *testing.T) {
		e, err := r.Entity(ctx, mara.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mara Voss", e.Name)
	})

	t.Run("unknown ID", func(t *testing.T) {
		_, err := r.Entity(ctx, "missing")
		assert.ErrorIs(t, err, entities.ErrEntityNotFound)
	})

	t.Run("details", func(t *testing.T) {
		details, err := r.Details(ctx, mara.ID)
		require.NoError(t, err)
		assert.NotNil(t, details.Character)

		details, err = r.Details(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, "missing", details.EntityID)
		assert.Nil(t, details.Character)
	})
}
