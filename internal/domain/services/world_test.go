package services

import (
	"testing"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeed() *entities.WorldSeed {
	return &entities.WorldSeed{
		Protagonist: entities.EntityCreated{
			Name: "Kai Moreau",
			Data: entities.EntityData{Attributes: map[string]entities.Value{
				"occupation": entities.StringValue("Courier"),
			}},
		},
		AI: &entities.EntityCreated{Name: "Echo"},
		Locations: []entities.EntityCreated{
			{Name: "Rust Bar"},
			{Name: "Eastern Docks", Data: entities.EntityData{Aliases: []string{"the docks"}}},
		},
		Organizations: []entities.EntityCreated{{Name: "Helix Corp"}},
		Characters: []entities.EntityCreated{{
			Name: "Mara Voss",
			Data: entities.EntityData{Attributes: map[string]entities.Value{"mood": entities.StringValue("cheerful")}},
		}},
		Objects: []entities.EntityCreated{{Name: "Old Datapad"}},
		Relations: []entities.RelationSpec{
			{SourceRef: "Mara Voss", TargetRef: "Rust Bar", RelationType: "works_at"},
			{SourceRef: "protagonist", TargetRef: "Echo", RelationType: "knows", Social: &entities.SocialAttrs{Level: intPtr(20)}},
			{SourceRef: "protagonist", TargetRef: "Old Datapad", RelationType: "owns"},
		},
		Commitments: []entities.CommitmentCreated{{CommitmentType: "arc", Description: "Kai pays off the debt"}},
		Events: []entities.EventScheduled{{
			Title:           "Shipment arrives",
			PlannedCycle:    3,
			LocationRef:     "the docks",
			ParticipantRefs: []string{"Mara"},
		}},
		StartLocation: "Rust Bar",
		Summary:       "Kai arrives in the city.",
	}
}

func TestPopulateWorld(t *testing.T) {
	repo, game := setupTestStore(t)
	ctx := t.Context()
	p := NewPopulator(repo, nil, nil, DefaultPopulatorOptions(), nil)

	stats, err := p.PopulateWorld(ctx, game.ID, testSeed())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.EntitiesCreated)
	assert.Equal(t, 4, stats.RelationsCreated, "three seeded plus the start location")
	assert.Equal(t, 1, stats.CommitmentsCreated)
	assert.Equal(t, 1, stats.EventsScheduled)

	pro, err := repo.FindProtagonist(ctx, game.ID)
	require.NoError(t, err)
	require.NotNil(t, pro)

	for _, gauge := range []entities.AttributeKey{entities.AttrEnergy, entities.AttrMorale, entities.AttrHealth} {
		attr := activeAttr(t, repo, pro.ID, gauge)
		require.NotNil(t, attr, gauge)
		assert.InDelta(t, 100, attr.Value.Num, 0)
		assert.Equal(t, 1, attr.StartCycle)
	}
	assert.InDelta(t, DefaultStartingCredits, activeAttr(t, repo, pro.ID, entities.AttrCredits).Value.Num, 0)
	assert.Equal(t, "courier", activeAttr(t, repo, pro.ID, entities.AttrOccupation).Value.Str)

	echo, err := repo.FindEntityByName(ctx, game.ID, "Echo")
	require.NoError(t, err)
	require.NotNil(t, echo)
	assert.Equal(t, entities.EntityAI, echo.Type)

	bar, err := repo.FindEntityByName(ctx, game.ID, "Rust Bar")
	require.NoError(t, err)
	located, err := repo.ActiveRelation(ctx, pro.ID, bar.ID, entities.RelationLocatedIn)
	require.NoError(t, err)
	assert.NotNil(t, located)

	knows, err := repo.ActiveRelation(ctx, pro.ID, echo.ID, entities.RelationKnows)
	require.NoError(t, err)
	require.NotNil(t, knows)
	assert.Equal(t, 20, *knows.Attributes.Level())

	events, err := repo.ListEvents(ctx, ports.EventFilter{GameID: game.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].LocationID)
	assert.Len(t, events[0].ParticipantIDs, 1)

	summaries, err := repo.CycleSummaries(ctx, game.ID, 2, 5)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Kai arrives in the city.", summaries[0].Summary)
}

func TestPopulateWorld_Policies(t *testing.T) {
	t.Run("seeded values are kept", func(t *testing.T) {
		repo, game := setupTestStore(t)
		p := NewPopulator(repo, nil, nil, DefaultPopulatorOptions(), nil)
		seed := testSeed()
		seed.Protagonist.Data.Attributes["credits"] = entities.NumberValue(50)
		seed.Protagonist.Data.Attributes["health"] = entities.NumberValue(60)

		_, err := p.PopulateWorld(t.Context(), game.ID, seed)
		require.NoError(t, err)

		pro, err := repo.FindProtagonist(t.Context(), game.ID)
		require.NoError(t, err)
		assert.InDelta(t, 50, activeAttr(t, repo, pro.ID, entities.AttrCredits).Value.Num, 0)
		assert.InDelta(t, 60, activeAttr(t, repo, pro.ID, entities.AttrHealth).Value.Num, 0)
	})

	t.Run("starting credits option", func(t *testing.T) {
		repo, game := setupTestStore(t)
		opts := DefaultPopulatorOptions()
		opts.StartingCredits = 900
		p := NewPopulator(repo, nil, nil, opts, nil)

		_, err := p.PopulateWorld(t.Context(), game.ID, testSeed())
		require.NoError(t, err)

		pro, err := repo.FindProtagonist(t.Context(), game.ID)
		require.NoError(t, err)
		assert.InDelta(t, 900, activeAttr(t, repo, pro.ID, entities.AttrCredits).Value.Num, 0)
	})

	t.Run("protagonist must be a protagonist", func(t *testing.T) {
		repo, game := setupTestStore(t)
		p := NewPopulator(repo, nil, nil, DefaultPopulatorOptions(), nil)
		seed := testSeed()
		seed.Protagonist.EntityType = "character"

		_, err := p.PopulateWorld(t.Context(), game.ID, seed)
		assert.ErrorIs(t, err, entities.ErrInvalidEntityType)
	})

	t.Run("failure leaves the game empty", func(t *testing.T) {
		repo, game := setupTestStore(t)
		p := NewPopulator(repo, nil, nil, DefaultPopulatorOptions(), nil)
		seed := testSeed()
		seed.StartLocation = "Nowhere"

		_, err := p.PopulateWorld(t.Context(), game.ID, seed)
		require.ErrorIs(t, err, entities.ErrEntityNotFound)

		names, err := repo.EntityNames(t.Context(), game.ID)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("unknown game", func(t *testing.T) {
		repo, _ := setupTestStore(t)
		p := NewPopulator(repo, nil, nil, DefaultPopulatorOptions(), nil)
		_, err := p.PopulateWorld(t.Context(), "missing", testSeed())
		assert.ErrorIs(t, err, entities.ErrGameNotFound)
	})
}
