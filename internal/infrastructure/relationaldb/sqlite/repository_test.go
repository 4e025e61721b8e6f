package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"github.com/ersonp/lore-state/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRepo creates an in-memory SQLite repository for testing.
func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	err = repo.EnsureSchema(context.Background())
	require.NoError(t, err)

	return repo
}

func setupTestGame(t *testing.T, repo *Repository) *entities.Game {
	t.Helper()
	game := &entities.Game{Name: "test", CurrentCycle: 1}
	require.NoError(t, repo.InsertGame(t.Context(), game))
	return game
}

func createEntity(t *testing.T, repo *Repository, gameID string, entityType entities.EntityType, name string, cycle int) *entities.Entity {
	t.Helper()
	e := &entities.Entity{
		GameID:       gameID,
		Type:         entityType,
		Name:         name,
		Known:        true,
		CreatedCycle: cycle,
	}
	require.NoError(t, repo.InsertEntity(t.Context(), e))
	return e
}

func intRef(v int) *int { return &v }

func TestNewRepository(t *testing.T) {
	t.Run("success with memory database", func(t *testing.T) {
		repo, err := NewRepository(config.SQLiteConfig{Path: ":memory:"})
		require.NoError(t, err)
		defer repo.Close()
		assert.NotNil(t, repo)
	})

	t.Run("error with empty path", func(t *testing.T) {
		_, err := NewRepository(config.SQLiteConfig{Path: ""})
		require.Error(t, err)
	})
}

func TestDSN(t *testing.T) {
	assert.Equal(t, ":memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate", dsn(":memory:"))
	assert.Contains(t, dsn("/tmp/lore.db"), "journal_mode(WAL)")
	assert.Contains(t, dsn("/tmp/lore.db?mode=rwc"), "?mode=rwc&_pragma=")
}

func TestRepository_EnsureSchema(t *testing.T) {
	repo := setupTestRepo(t)

	tables := []string{
		"games", "entities", "entity_aliases", "entity_details", "attributes", "relations",
		"relation_social", "relation_professional", "relation_spatial", "relation_ownership",
		"facts", "fact_participants", "commitments", "events", "event_participants",
		"messages", "cycle_summaries", "credit_transactions", "changelog",
	}
	for _, table := range tables {
		var count int
		err := repo.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	require.NoError(t, repo.EnsureSchema(t.Context()))
}

func TestRepository_Games(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()

	game := setupTestGame(t, repo)
	assert.NotEmpty(t, game.ID)

	require.NoError(t, repo.UpdateGameCycle(ctx, game.ID, 4))
	found, err := repo.FindGame(ctx, game.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 4, found.CurrentCycle)

	missing, err := repo.FindGame(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.UpdateGameCycle(ctx, "nope", 2)
	assert.ErrorIs(t, err, entities.ErrGameNotFound)

	games, err := repo.ListGames(ctx)
	require.NoError(t, err)
	assert.Len(t, games, 1)
}

func TestRepository_Entities(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)

	mara := &entities.Entity{
		GameID:       game.ID,
		Type:         entities.EntityCharacter,
		Name:         "Mara  Voss",
		Aliases:      []string{"Mara", "mara voss", "The Fixer"},
		Known:        true,
		CreatedCycle: 1,
	}
	require.NoError(t, repo.InsertEntity(ctx, mara))
	assert.Equal(t, "mara voss", mara.NormalizedName)

	t.Run("find by name is case insensitive", func(t *testing.T) {
		found, err := repo.FindEntityByName(ctx, game.ID, "MARA VOSS")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, mara.ID, found.ID)
		assert.Equal(t, []string{"Mara", "The Fixer"}, found.Aliases)
	})

	t.Run("duplicate active name", func(t *testing.T) {
		dup := &entities.Entity{GameID: game.ID, Type: entities.EntityLocation, Name: "mara voss", CreatedCycle: 2}
		err := repo.InsertEntity(ctx, dup)
		assert.ErrorIs(t, err, entities.ErrDuplicateName)
	})

	t.Run("removed name can be reused", func(t *testing.T) {
		require.NoError(t, repo.MarkEntityRemoved(ctx, mara.ID, 3))

		found, err := repo.FindEntityByName(ctx, game.ID, "Mara Voss")
		require.NoError(t, err)
		assert.Nil(t, found)

		again := createEntity(t, repo, game.ID, entities.EntityCharacter, "Mara Voss", 4)
		assert.NotEqual(t, mara.ID, again.ID)

		byID, err := repo.FindEntityByID(ctx, mara.ID)
		require.NoError(t, err)
		require.NotNil(t, byID)
		require.NotNil(t, byID.RemovedCycle)
		assert.Equal(t, 3, *byID.RemovedCycle)
	})

	t.Run("list newest first", func(t *testing.T) {
		createEntity(t, repo, game.ID, entities.EntityLocation, "Dock 9", 5)

		list, err := repo.ListEntities(ctx, game.ID, ports.EntityFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Dock 9", list[0].Name)

		all, err := repo.ListEntities(ctx, game.ID, ports.EntityFilter{IncludeRemoved: true})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		locations, err := repo.ListEntities(ctx, game.ID, ports.EntityFilter{Type: entities.EntityLocation})
		require.NoError(t, err)
		assert.Len(t, locations, 1)

		names, err := repo.EntityNames(ctx, game.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Dock 9", "Mara Voss"}, names)
	})
}

func TestRepository_Details(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)
	loc := createEntity(t, repo, game.ID, entities.EntityLocation, "Dock 9", 1)

	details := entities.EntityDetails{Location: &entities.LocationDetails{LocationType: "dock", Sector: "Lower Ring"}}
	require.NoError(t, repo.InsertDetails(ctx, loc.ID, loc.Type, details))

	found, err := repo.FindDetails(ctx, loc.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.Location)
	assert.Equal(t, "Lower Ring", found.Location.Sector)
	assert.Equal(t, loc.ID, found.EntityID)

	missing, err := repo.FindDetails(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_AttributeVersions(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)
	npc := createEntity(t, repo, game.ID, entities.EntityCharacter, "Ilse", 1)

	first := &entities.Attribute{EntityID: npc.ID, Key: entities.AttrOccupation, Value: entities.StringValue("barista"), StartCycle: 3}
	require.NoError(t, repo.InsertAttribute(ctx, first))

	err := repo.WithTx(ctx, func(tx ports.GraphTx) error {
		second := &entities.Attribute{EntityID: npc.ID, Key: entities.AttrOccupation, Value: entities.StringValue("manager"), StartCycle: 7}
		if err := tx.CloseAttribute(ctx, first.ID, 6, 7, ""); err != nil {
			return err
		}
		return tx.InsertAttribute(ctx, second)
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		cycle int
		want  string
	}{
		{"before first version", 2, ""},
		{"first version", 5, "barista"},
		{"last cycle of first version", 6, "barista"},
		{"second version", 7, "manager"},
		{"far future", 50, "manager"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs, err := repo.AttributesAt(ctx, npc.ID, tt.cycle)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Empty(t, attrs)
				return
			}
			require.Len(t, attrs, 1)
			assert.Equal(t, tt.want, attrs[0].Value.String())
		})
	}

	active, err := repo.ActiveAttribute(ctx, npc.ID, entities.AttrOccupation)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "manager", active.Value.String())

	history, err := repo.AttributeHistory(ctx, npc.ID, entities.AttrOccupation)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 6, *history[0].EndCycle)
	assert.Equal(t, 7, *history[0].ClosedCycle)
	assert.True(t, history[1].Active())
}

func TestRepository_AttributeInvariants(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)
	npc := createEntity(t, repo, game.ID, entities.EntityCharacter, "Ilse", 1)

	require.NoError(t, repo.InsertAttribute(ctx, &entities.Attribute{
		EntityID: npc.ID, Key: entities.AttrMood, Value: entities.StringValue("calm"), StartCycle: 1,
	}))

	t.Run("second active version is rejected", func(t *testing.T) {
		err := repo.InsertAttribute(ctx, &entities.Attribute{
			EntityID: npc.ID, Key: entities.AttrMood, Value: entities.StringValue("angry"), StartCycle: 2,
		})
		require.Error(t, err)
	})

	t.Run("end before start is rejected", func(t *testing.T) {
		err := repo.InsertAttribute(ctx, &entities.Attribute{
			EntityID: npc.ID, Key: entities.AttrStatus, Value: entities.StringValue("alive"),
			StartCycle: 5, EndCycle: intRef(4), ClosedCycle: intRef(5),
		})
		require.Error(t, err)
	})

	t.Run("unknown entity", func(t *testing.T) {
		err := repo.InsertAttribute(ctx, &entities.Attribute{
			EntityID: "nope", Key: entities.AttrMood, Value: entities.StringValue("calm"), StartCycle: 1,
		})
		assert.ErrorIs(t, err, entities.ErrEntityNotFound)
	})

	t.Run("closing twice", func(t *testing.T) {
		active, err := repo.ActiveAttribute(ctx, npc.ID, entities.AttrMood)
		require.NoError(t, err)
		require.NoError(t, repo.CloseAttribute(ctx, active.ID, 1, 2, ""))
		require.Error(t, repo.CloseAttribute(ctx, active.ID, 1, 2, ""))
	})
}

func TestRepository_Relations(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)
	hero := createEntity(t, repo, game.ID, entities.EntityProtagonist, "Kade", 1)
	mara := createEntity(t, repo, game.ID, entities.EntityCharacter, "Mara", 1)
	bar := createEntity(t, repo, game.ID, entities.EntityLocation, "The Rusty Valve", 1)

	friend := &entities.Relationship{
		GameID:             game.ID,
		SourceEntityID:     hero.ID,
		TargetEntityID:     mara.ID,
		Type:               entities.RelationFriendOf,
		KnownByProtagonist: true,
		StartCycle:         1,
		Attributes:         entities.RelationAttributes{Social: &entities.SocialAttrs{Level: intRef(250), Context: "old crew"}},
	}
	require.NoError(t, repo.InsertRelation(ctx, friend))

	works := &entities.Relationship{
		GameID:         game.ID,
		SourceEntityID: mara.ID,
		TargetEntityID: bar.ID,
		Type:           entities.RelationWorksAt,
		StartCycle:     1,
		Attributes:     entities.RelationAttributes{Professional: &entities.ProfessionalAttrs{Position: "bartender"}},
	}
	require.NoError(t, repo.InsertRelation(ctx, works))

	t.Run("extension row round trip", func(t *testing.T) {
		found, err := repo.ActiveRelation(ctx, hero.ID, mara.ID, entities.RelationFriendOf)
		require.NoError(t, err)
		require.NotNil(t, found)
		require.NotNil(t, found.Attributes.Social)
		assert.Equal(t, entities.RelationLevelMax, *found.Attributes.Level())
		assert.Equal(t, "old crew", found.Attributes.Social.Context)
		assert.True(t, found.KnownByProtagonist)

		job, err := repo.ActiveRelation(ctx, mara.ID, bar.ID, entities.RelationWorksAt)
		require.NoError(t, err)
		require.NotNil(t, job.Attributes.Professional)
		assert.Equal(t, "bartender", job.Attributes.Professional.Position)
		assert.Nil(t, job.Attributes.Social)
	})

	t.Run("duplicate active triple", func(t *testing.T) {
		err := repo.InsertRelation(ctx, &entities.Relationship{
			GameID: game.ID, SourceEntityID: hero.ID, TargetEntityID: mara.ID,
			Type: entities.RelationFriendOf, StartCycle: 2,
		})
		assert.ErrorIs(t, err, entities.ErrDuplicateRelation)
	})

	t.Run("invalid type", func(t *testing.T) {
		err := repo.InsertRelation(ctx, &entities.Relationship{
			GameID: game.ID, SourceEntityID: hero.ID, TargetEntityID: mara.ID,
			Type: "adores", StartCycle: 2,
		})
		assert.ErrorIs(t, err, entities.ErrInvalidRelationType)
	})

	t.Run("versions at cycle", func(t *testing.T) {
		next := &entities.Relationship{
			GameID: game.ID, SourceEntityID: hero.ID, TargetEntityID: mara.ID,
			Type: entities.RelationFriendOf, StartCycle: 4,
			Attributes: entities.RelationAttributes{Social: &entities.SocialAttrs{Level: intRef(10)}},
		}
		err := repo.WithTx(ctx, func(tx ports.GraphTx) error {
			if err := tx.CloseRelation(ctx, friend.ID, 3, 4, next.ID); err != nil {
				return err
			}
			return tx.InsertRelation(ctx, next)
		})
		require.NoError(t, err)

		at2, err := repo.ListRelations(ctx, ports.RelationFilter{SourceID: hero.ID, AtCycle: intRef(2)})
		require.NoError(t, err)
		require.Len(t, at2, 1)
		assert.Equal(t, friend.ID, at2[0].ID)

		active, err := repo.ListRelations(ctx, ports.RelationFilter{SourceID: hero.ID})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, next.ID, active[0].ID)

		all, err := repo.ListRelations(ctx, ports.RelationFilter{SourceID: hero.ID, AllVersions: true})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("listing requires a game or entity", func(t *testing.T) {
		for _, filter := range []ports.RelationFilter{
			{},
			{AllVersions: true},
			{AtCycle: intRef(2)},
			{Types: []entities.RelationType{entities.RelationFriendOf}},
		} {
			rels, err := repo.ListRelations(ctx, filter)
			require.Error(t, err)
			assert.Nil(t, rels)
		}

		byGame, err := repo.ListRelations(ctx, ports.RelationFilter{GameID: game.ID})
		require.NoError(t, err)
		assert.Len(t, byGame, 2, "the current friend_of version and works_at")
	})
}

func TestRepository_RelationQueries(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)

	hero := createEntity(t, repo, game.ID, entities.EntityProtagonist, "Kade", 1)
	dock := createEntity(t, repo, game.ID, entities.EntityLocation, "Dock 9", 1)
	market := createEntity(t, repo, game.ID, entities.EntityLocation, "Night Market", 1)
	spire := createEntity(t, repo, game.ID, entities.EntityLocation, "Spire", 1)
	tunnel := createEntity(t, repo, game.ID, entities.EntityLocation, "Access Tunnel", 1)
	ana := createEntity(t, repo, game.ID, entities.EntityCharacter, "Ana", 1)
	bo := createEntity(t, repo, game.ID, entities.EntityCharacter, "Bo", 1)
	cy := createEntity(t, repo, game.ID, entities.EntityCharacter, "Cy", 1)

	sector := func(id, name string) {
		require.NoError(t, repo.InsertDetails(ctx, id, entities.EntityLocation,
			entities.EntityDetails{Location: &entities.LocationDetails{Sector: name}}))
	}
	sector(dock.ID, "lower ring")
	sector(market.ID, "lower ring")
	sector(spire.ID, "upper ring")
	sector(tunnel.ID, "")

	relate := func(source, target string, relType entities.RelationType, level *int) {
		rel := &entities.Relationship{GameID: game.ID, SourceEntityID: source, TargetEntityID: target, Type: relType, StartCycle: 1}
		if level != nil {
			rel.Attributes.Social = &entities.SocialAttrs{Level: level}
		}
		require.NoError(t, repo.InsertRelation(ctx, rel))
	}
	relate(tunnel.ID, dock.ID, entities.RelationConnectedTo, nil)
	relate(ana.ID, dock.ID, entities.RelationLocatedIn, nil)
	relate(bo.ID, dock.ID, entities.RelationLocatedIn, nil)
	relate(cy.ID, spire.ID, entities.RelationLocatedIn, nil)
	relate(hero.ID, ana.ID, entities.RelationKnows, intRef(20))
	relate(bo.ID, hero.ID, entities.RelationFriendOf, intRef(60))
	relate(hero.ID, bo.ID, entities.RelationKnows, intRef(5))
	relate(hero.ID, cy.ID, entities.RelationEnemy, nil)

	t.Run("connected locations by sector and link", func(t *testing.T) {
		locs, err := repo.ConnectedLocations(ctx, dock.ID, 10)
		require.NoError(t, err)
		names := make([]string, 0, len(locs))
		for _, l := range locs {
			names = append(names, l.Name)
		}
		assert.Equal(t, []string{"Access Tunnel", "Night Market"}, names)
	})

	t.Run("connected locations capped", func(t *testing.T) {
		locs, err := repo.ConnectedLocations(ctx, dock.ID, 1)
		require.NoError(t, err)
		assert.Len(t, locs, 1)
	})

	t.Run("linked sources", func(t *testing.T) {
		present, err := repo.LinkedSources(ctx, dock.ID, entities.EntityCharacter,
			[]entities.RelationType{entities.RelationLocatedIn}, 5)
		require.NoError(t, err)
		require.Len(t, present, 2)
		assert.Equal(t, "Ana", present[0].Name)
		assert.Equal(t, "Bo", present[1].Name)
	})

	t.Run("related by level", func(t *testing.T) {
		related, err := repo.RelatedByLevel(ctx, hero.ID, entities.EntityCharacter,
			[]entities.RelationType{entities.RelationKnows, entities.RelationFriendOf, entities.RelationEnemy}, 10)
		require.NoError(t, err)
		require.Len(t, related, 3)
		assert.Equal(t, bo.ID, related[0].Entity.ID)
		assert.Equal(t, entities.RelationFriendOf, related[0].Relation.Type)
		assert.Equal(t, ana.ID, related[1].Entity.ID)
		assert.Equal(t, cy.ID, related[2].Entity.ID)
		assert.Nil(t, related[2].Relation.Attributes.Level())
	})

	t.Run("related by level capped", func(t *testing.T) {
		related, err := repo.RelatedByLevel(ctx, hero.ID, entities.EntityCharacter,
			[]entities.RelationType{entities.RelationKnows, entities.RelationFriendOf}, 1)
		require.NoError(t, err)
		require.Len(t, related, 1)
		assert.Equal(t, bo.ID, related[0].Entity.ID)
	})
}

func TestRepository_Facts(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)
	hero := createEntity(t, repo, game.ID, entities.EntityProtagonist, "Kade", 1)
	dock := createEntity(t, repo, game.ID, entities.EntityLocation, "Dock 9", 1)

	newFact := func(cycle, importance int, desc string) *entities.Fact {
		return &entities.Fact{
			GameID:       game.ID,
			Cycle:        cycle,
			Type:         entities.FactAction,
			Domain:       entities.DomainPersonal,
			Description:  desc,
			Importance:   importance,
			LocationID:   dock.ID,
			Participants: []entities.FactParticipant{{EntityID: hero.ID, Role: "actor"}},
		}
	}

	inserted, err := repo.InsertFact(ctx, newFact(2, 3, "Kade repaired the drone."))
	require.NoError(t, err)
	assert.True(t, inserted)

	t.Run("same cycle rephrasing is deduplicated", func(t *testing.T) {
		inserted, err := repo.InsertFact(ctx, newFact(2, 5, "kade repaired   the drone"))
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("other cycle is kept", func(t *testing.T) {
		inserted, err := repo.InsertFact(ctx, newFact(3, 5, "Kade repaired the drone."))
		require.NoError(t, err)
		assert.True(t, inserted)
	})

	t.Run("invalid fact", func(t *testing.T) {
		_, err := repo.InsertFact(ctx, newFact(3, 0, "nothing"))
		assert.ErrorIs(t, err, entities.ErrInvalidValue)
	})

	t.Run("find by key", func(t *testing.T) {
		key := entities.SemanticKey(entities.FactAction, "Kade repaired the drone")
		found, err := repo.FindFactByKey(ctx, game.ID, 2, key)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, 3, found.Importance)
		require.Len(t, found.Participants, 1)
		assert.Equal(t, "actor", found.Participants[0].Role)
	})

	t.Run("list ordered by importance then cycle", func(t *testing.T) {
		_, err := repo.InsertFact(ctx, newFact(4, 1, "Kade slept."))
		require.NoError(t, err)

		facts, err := repo.ListFacts(ctx, ports.FactFilter{GameID: game.ID})
		require.NoError(t, err)
		require.Len(t, facts, 3)
		assert.Equal(t, 5, facts[0].Importance)
		assert.Equal(t, 3, facts[1].Importance)
		assert.Equal(t, 1, facts[2].Importance)

		important, err := repo.ListFacts(ctx, ports.FactFilter{GameID: game.ID, MinImportance: 3, MaxCycle: 2})
		require.NoError(t, err)
		assert.Len(t, important, 1)

		byHero, err := repo.ListFacts(ctx, ports.FactFilter{GameID: game.ID, ParticipantIDs: []string{hero.ID}, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, byHero, 2)
	})
}

func TestRepository_Commitments(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)

	add := func(commitmentType entities.CommitmentType, desc string, deadline *int) *entities.Commitment {
		c := &entities.Commitment{GameID: game.ID, Type: commitmentType, Description: desc, CreatedCycle: 1, DeadlineCycle: deadline}
		require.NoError(t, repo.InsertCommitment(ctx, c))
		return c
	}
	setup := add(entities.CommitmentSetup, "setup", intRef(2))
	add(entities.CommitmentSecret, "secret open", nil)
	add(entities.CommitmentSecret, "secret soon", intRef(5))
	add(entities.CommitmentArc, "arc", nil)

	list, err := repo.ListCommitments(ctx, game.ID, true, 0)
	require.NoError(t, err)
	descs := make([]string, 0, len(list))
	for _, c := range list {
		descs = append(descs, c.Description)
	}
	assert.Equal(t, []string{"arc", "secret soon", "secret open", "setup"}, descs)

	require.NoError(t, repo.ResolveCommitment(ctx, setup.ID, 3, "paid off"))
	require.Error(t, repo.ResolveCommitment(ctx, setup.ID, 4, "again"))

	open, err := repo.ListCommitments(ctx, game.ID, true, 2)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	all, err := repo.ListCommitments(ctx, game.ID, false, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.True(t, all[3].Resolved)
	assert.Equal(t, 3, *all[3].ResolvedCycle)
}

func TestRepository_Events(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)
	ana := createEntity(t, repo, game.ID, entities.EntityCharacter, "Ana", 1)

	later := &entities.ScheduledEvent{GameID: game.ID, Title: "Auction", PlannedCycle: 6, CreatedCycle: 1}
	soon := &entities.ScheduledEvent{GameID: game.ID, Title: "Meeting", PlannedCycle: 3, CreatedCycle: 1, ParticipantIDs: []string{ana.ID}}
	require.NoError(t, repo.InsertEvent(ctx, later))
	require.NoError(t, repo.InsertEvent(ctx, soon))

	pending, err := repo.ListEvents(ctx, ports.EventFilter{GameID: game.ID, Status: entities.EventPending})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "Meeting", pending[0].Title)
	assert.Equal(t, []string{ana.ID}, pending[0].ParticipantIDs)

	require.NoError(t, repo.CloseEvent(ctx, soon.ID, entities.EventCompleted, 3))
	require.Error(t, repo.CloseEvent(ctx, soon.ID, entities.EventCancelled, 4))
	require.Error(t, repo.CloseEvent(ctx, later.ID, entities.EventPending, 4))

	found, err := repo.FindEvent(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.EventCompleted, found.Status)
	assert.Equal(t, 3, *found.ClosedCycle)
}

func TestRepository_Messages(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)

	for i, content := range []string{"one", "two", "three"} {
		m := &entities.Message{GameID: game.ID, Role: entities.RoleUser, Content: content, Cycle: 1}
		if i != 1 {
			m.Summary = content + " summary"
		}
		require.NoError(t, repo.InsertMessage(ctx, m))
		assert.Equal(t, int64(i+1), m.Seq)
	}

	recent, err := repo.RecentMessages(ctx, game.ID, false, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "two", recent[0].Content)
	assert.Equal(t, "three", recent[1].Content)

	summarized, err := repo.RecentMessages(ctx, game.ID, true, 5)
	require.NoError(t, err)
	assert.Len(t, summarized, 2)

	n, err := repo.DeleteMessagesFrom(ctx, game.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	m := &entities.Message{GameID: game.ID, Role: entities.RoleAssistant, Content: "again", Cycle: 1}
	require.NoError(t, repo.InsertMessage(ctx, m))
	assert.Equal(t, int64(2), m.Seq)
}

func TestRepository_CycleSummaries(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)

	for cycle := 1; cycle <= 5; cycle++ {
		require.NoError(t, repo.UpsertCycleSummary(ctx, &entities.CycleSummary{GameID: game.ID, Cycle: cycle, Summary: "draft"}))
	}
	require.NoError(t, repo.UpsertCycleSummary(ctx, &entities.CycleSummary{GameID: game.ID, Cycle: 4, Summary: "final"}))

	summaries, err := repo.CycleSummaries(ctx, game.ID, 5, 2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 3, summaries[0].Cycle)
	assert.Equal(t, "final", summaries[1].Summary)
}

func TestRepository_ChangeLog(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)

	first := &entities.ChangeEntry{GameID: game.ID, Cycle: 1, Action: entities.ActionEntityCreated, TargetID: "e1",
		Details: map[string]any{"name": "Kade"}}
	require.NoError(t, repo.LogChange(ctx, first))
	require.NoError(t, repo.LogChange(ctx, &entities.ChangeEntry{GameID: game.ID, Cycle: 2, Action: entities.ActionFactCreated}))

	entries, err := repo.ListChanges(ctx, game.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entities.ActionFactCreated, entries[0].Action)
	assert.Equal(t, "Kade", entries[1].Details["name"])

	n, err := repo.DeleteChangesAfter(ctx, game.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRepository_WithTx(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)

	t.Run("error rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.WithTx(ctx, func(tx ports.GraphTx) error {
			e := &entities.Entity{GameID: game.ID, Type: entities.EntityCharacter, Name: "Ghost", CreatedCycle: 1}
			if err := tx.InsertEntity(ctx, e); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		found, err := repo.FindEntityByName(ctx, game.ID, "Ghost")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("panic rolls back", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = repo.WithTx(ctx, func(tx ports.GraphTx) error {
				e := &entities.Entity{GameID: game.ID, Type: entities.EntityCharacter, Name: "Phantom", CreatedCycle: 1}
				if err := tx.InsertEntity(ctx, e); err != nil {
					return err
				}
				panic("boom")
			})
		})

		found, err := repo.FindEntityByName(ctx, game.ID, "Phantom")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("nested joins outer", func(t *testing.T) {
		err := repo.WithTx(ctx, func(tx ports.GraphTx) error {
			return tx.(*Repository).WithTx(ctx, func(inner ports.GraphTx) error {
				return inner.InsertEntity(ctx, &entities.Entity{GameID: game.ID, Type: entities.EntityObject, Name: "Key", CreatedCycle: 1})
			})
		})
		require.NoError(t, err)

		found, err := repo.FindEntityByName(ctx, game.ID, "key")
		require.NoError(t, err)
		assert.NotNil(t, found)
	})
}

func TestRepository_Revert(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := t.Context()
	game := setupTestGame(t, repo)

	hero := createEntity(t, repo, game.ID, entities.EntityProtagonist, "Kade", 1)
	ana := createEntity(t, repo, game.ID, entities.EntityCharacter, "Ana", 3)
	late := createEntity(t, repo, game.ID, entities.EntityCharacter, "Latecomer", 6)

	mood := &entities.Attribute{EntityID: ana.ID, Key: entities.AttrMood, Value: entities.StringValue("calm"), StartCycle: 3}
	require.NoError(t, repo.InsertAttribute(ctx, mood))
	knows := &entities.Relationship{GameID: game.ID, SourceEntityID: hero.ID, TargetEntityID: ana.ID, Type: entities.RelationKnows, StartCycle: 3}
	require.NoError(t, repo.InsertRelation(ctx, knows))
	require.NoError(t, repo.InsertRelation(ctx, &entities.Relationship{
		GameID: game.ID, SourceEntityID: hero.ID, TargetEntityID: late.ID, Type: entities.RelationKnows, StartCycle: 6,
	}))

	err := repo.WithTx(ctx, func(tx ports.GraphTx) error {
		next := &entities.Attribute{EntityID: ana.ID, Key: entities.AttrMood, Value: entities.StringValue("angry"), StartCycle: 6}
		if err := tx.CloseAttribute(ctx, mood.ID, 5, 6, next.ID); err != nil {
			return err
		}
		if err := tx.InsertAttribute(ctx, next); err != nil {
			return err
		}
		if err := tx.CloseRelation(ctx, knows.ID, 5, 6, ""); err != nil {
			return err
		}
		return tx.MarkEntityRemoved(ctx, ana.ID, 7)
	})
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(tx ports.GraphTx) error {
		steps := []func(context.Context, string, int) (int64, error){
			tx.DeleteAttributesStartedAfter,
			tx.ReopenAttributesClosedAfter,
			tx.DeleteRelationsStartedAfter,
			tx.ReopenRelationsClosedAfter,
			tx.DeleteEntitiesCreatedAfter,
			tx.RestoreEntitiesRemovedAfter,
		}
		for _, step := range steps {
			if _, err := step(ctx, game.ID, 5); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	gone, err := repo.FindEntityByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	restored, err := repo.FindEntityByName(ctx, game.ID, "Ana")
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Nil(t, restored.RemovedCycle)

	active, err := repo.ActiveAttribute(ctx, ana.ID, entities.AttrMood)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, mood.ID, active.ID)
	assert.Empty(t, active.SupersededBy)

	rel, err := repo.ActiveRelation(ctx, hero.ID, ana.ID, entities.RelationKnows)
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Nil(t, rel.EndCycle)

	rels, err := repo.ListRelations(ctx, ports.RelationFilter{SourceID: hero.ID, AllVersions: true})
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}
