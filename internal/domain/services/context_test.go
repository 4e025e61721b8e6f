package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAssembler_Build(t *testing.T) {
	repo, game := setupTestStore(t)
	ctx := t.Context()
	p := NewPopulator(repo, nil, nil, DefaultPopulatorOptions(), nil)
	_, err := p.PopulateWorld(ctx, game.ID, testSeed())
	require.NoError(t, err)

	find := func(name string) *entities.Entity {
		e, err := repo.FindEntityByName(ctx, game.ID, name)
		require.NoError(t, err)
		require.NotNil(t, e, name)
		return e
	}
	pro, mara, bar, docks := find("Kai Moreau"), find("Mara Voss"), find("Rust Bar"), find("Eastern Docks")

	_, err = p.CreateRelation(ctx, game.ID, RelationInput{
		SourceID: pro.ID, TargetID: mara.ID, Type: entities.RelationFriendOf,
		Attributes: entities.RelationAttributes{Social: &entities.SocialAttrs{Level: intPtr(30)}},
	}, 1)
	require.NoError(t, err)
	_, err = p.CreateRelation(ctx, game.ID, RelationInput{SourceID: bar.ID, TargetID: docks.ID, Type: entities.RelationConnectedTo}, 1)
	require.NoError(t, err)

	for i, desc := range []string{"The bar burned down", "Kai lost a bet", "Mara revealed a secret"} {
		_, err := p.CreateFact(ctx, &entities.Fact{
			GameID:       game.ID,
			Cycle:        1,
			Type:         entities.FactRevelation,
			Domain:       entities.DomainWorld,
			Description:  desc,
			Importance:   5 - i%2,
			LocationID:   bar.ID,
			Participants: []entities.FactParticipant{{EntityID: mara.ID, Role: "witness"}},
		})
		require.NoError(t, err)
	}

	limits := DefaultContextLimits()
	limits.MaxImportantFacts = 2
	limits.MaxTextLength = 10
	snap, err := NewContextAssembler(repo, limits, nil).Build(ctx, game.ID, entities.TurnInputs{Cycle: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Cycle)
	assert.Equal(t, "Kai Moreau", snap.Protagonist.Name)
	assert.Equal(t, DefaultStartingCredits, snap.Protagonist.Credits)
	assert.InDelta(t, 100, snap.Protagonist.Energy, 0)
	assert.Equal(t, "courier", snap.Protagonist.Occupation)

	require.Len(t, snap.Inventory, 1)
	assert.Equal(t, "Old Datapad", snap.Inventory[0].Name)
	assert.Equal(t, 1, snap.Inventory[0].Quantity)

	assert.Equal(t, "Rust Bar", snap.CurrentLocation.Name)
	assert.False(t, snap.CurrentLocation.Unknown)
	require.Len(t, snap.ConnectedLocations, 1)
	assert.Equal(t, "Eastern Docks", snap.ConnectedLocations[0].Name)

	require.Len(t, snap.NPCsPresent, 1)
	assert.Equal(t, "Mara Voss", snap.NPCsPresent[0].Name)
	assert.Equal(t, "happy", snap.NPCsPresent[0].Mood)

	require.Len(t, snap.NPCsRelevant, 1)
	assert.Equal(t, mara.ID, snap.NPCsRelevant[0].ID)
	require.NotNil(t, snap.NPCsRelevant[0].Level)
	assert.Equal(t, 30, *snap.NPCsRelevant[0].Level)

	require.Len(t, snap.Commitments, 1)
	assert.Equal(t, "Kai pay...", snap.Commitments[0].Description)

	require.Len(t, snap.Events, 1)
	assert.Equal(t, "Eastern Docks", snap.Events[0].Location)

	assert.Len(t, snap.Facts.Important, 2)
	for _, f := range snap.Facts.Important {
		assert.LessOrEqual(t, len([]rune(f.Description)), 10)
	}
	assert.Len(t, snap.Facts.Location, 3)
	assert.Len(t, snap.Facts.NPC, 3)

	require.Len(t, snap.History.CycleSummaries, 1)
	assert.Equal(t, 1, snap.History.CycleSummaries[0].Cycle)
	assert.NotNil(t, snap.History.MessageSummaries)
}

func TestContextAssembler_DefaultLimits(t *testing.T) {
	repo, game := setupTestStore(t)
	ctx := t.Context()
	p := NewPopulator(repo, nil, nil, DefaultPopulatorOptions(), nil)
	pro := createProtagonist(t, p, game.ID, 1400)

	create := func(typ entities.EntityType, name string) *entities.Entity {
		t.Helper()
		e, err := p.CreateEntity(ctx, game.ID, EntityInput{Type: typ, Name: name}, 1)
		require.NoError(t, err)
		return e
	}
	relate := func(source, target *entities.Entity, typ entities.RelationType, level *int) {
		t.Helper()
		in := RelationInput{SourceID: source.ID, TargetID: target.ID, Type: typ}
		if level != nil {
			in.Attributes = entities.RelationAttributes{Social: &entities.SocialAttrs{Level: level}}
		}
		_, err := p.CreateRelation(ctx, game.ID, in, 1)
		require.NoError(t, err)
	}

	hub := create(entities.EntityLocation, "Hub")
	relate(pro, hub, entities.RelationLocatedIn, nil)
	for i := range 12 {
		relate(create(entities.EntityLocation, fmt.Sprintf("Spoke %02d", i)), hub, entities.RelationConnectedTo, nil)
	}

	// Six leveled friends and six unleveled acquaintances, all regulars at the hub.
	crew := make([]*entities.Entity, 12)
	for i := range crew {
		crew[i] = create(entities.EntityCharacter, fmt.Sprintf("Crew %02d", i))
		relate(crew[i], hub, entities.RelationFrequents, nil)
		if i < 6 {
			relate(pro, crew[i], entities.RelationFriendOf, intPtr((i+1)*10))
		} else {
			relate(pro, crew[i], entities.RelationKnows, nil)
		}
	}

	for i := range 12 {
		commitmentType := []string{"setup", "arc", "secret"}[i%3]
		_, err := p.CreateCommitment(ctx, game.ID, entities.CommitmentCreated{
			CommitmentType: commitmentType,
			Description:    fmt.Sprintf("Promise %02d", i),
		}, 1)
		require.NoError(t, err)
	}

	for i := range 7 {
		require.NoError(t, repo.InsertEvent(ctx, &entities.ScheduledEvent{
			GameID:       game.ID,
			Title:        fmt.Sprintf("Meeting %d", i),
			PlannedCycle: 10 + i,
			CreatedCycle: 1,
		}))
	}

	long := strings.Repeat("ö", 250)
	for i := range 12 {
		_, err := p.CreateFact(ctx, &entities.Fact{
			GameID:       game.ID,
			Cycle:        8,
			Type:         entities.FactAction,
			Domain:       entities.DomainWorld,
			Description:  fmt.Sprintf("Fact %02d %s", i, long),
			Importance:   5,
			LocationID:   hub.ID,
			Participants: []entities.FactParticipant{{EntityID: crew[0].ID, Role: "actor"}},
		})
		require.NoError(t, err)
	}

	for c := 1; c <= 9; c++ {
		require.NoError(t, p.SaveCycleSummary(ctx, game.ID, c, fmt.Sprintf("Cycle %d %s", c, long)))
	}
	for i := range 7 {
		require.NoError(t, p.RecordMessage(ctx, &entities.Message{
			GameID:  game.ID,
			Role:    entities.RoleAssistant,
			Content: "narration",
			Summary: fmt.Sprintf("Message %d %s", i, long),
			Cycle:   9,
		}))
	}

	limits := DefaultContextLimits()
	snap, err := NewContextAssembler(repo, limits, nil).Build(ctx, game.ID, entities.TurnInputs{Cycle: 10})
	require.NoError(t, err)

	assert.Equal(t, "Hub", snap.CurrentLocation.Name)

	require.Len(t, snap.ConnectedLocations, limits.MaxConnectedLocations)
	assert.Equal(t, "Spoke 00", snap.ConnectedLocations[0].Name)
	assert.Equal(t, "Spoke 09", snap.ConnectedLocations[9].Name)

	require.Len(t, snap.NPCsPresent, limits.MaxNPCsPresent)
	assert.Equal(t, "Crew 00", snap.NPCsPresent[0].Name)

	require.Len(t, snap.NPCsRelevant, limits.MaxNPCsRelevant)
	for i, npc := range snap.NPCsRelevant[:6] {
		require.NotNil(t, npc.Level, npc.Name)
		assert.Equal(t, (6-i)*10, *npc.Level, "leveled relations descend")
	}
	for _, npc := range snap.NPCsRelevant[6:] {
		assert.Nil(t, npc.Level, "unleveled relations come last")
		assert.Equal(t, string(entities.RelationKnows), npc.Relation)
	}

	require.Len(t, snap.Commitments, limits.MaxCommitments)
	for _, c := range snap.Commitments[:4] {
		assert.Equal(t, string(entities.CommitmentArc), c.Type)
	}
	for _, c := range snap.Commitments[4:8] {
		assert.Equal(t, string(entities.CommitmentSecret), c.Type)
	}
	for _, c := range snap.Commitments[8:] {
		assert.Equal(t, string(entities.CommitmentSetup), c.Type)
	}

	require.Len(t, snap.Events, limits.MaxEvents)
	assert.Equal(t, 10, snap.Events[0].PlannedCycle)
	assert.Equal(t, 14, snap.Events[4].PlannedCycle)

	assert.Len(t, snap.Facts.Important, limits.MaxImportantFacts)
	assert.Len(t, snap.Facts.Location, limits.MaxLocationFacts)
	assert.Len(t, snap.Facts.NPC, limits.MaxNPCFacts)

	require.Len(t, snap.History.CycleSummaries, limits.MaxCycleSummaries)
	assert.Equal(t, 3, snap.History.CycleSummaries[0].Cycle)
	assert.Equal(t, 9, snap.History.CycleSummaries[6].Cycle)
	require.Len(t, snap.History.MessageSummaries, limits.MaxMessageSummaries)

	texts := []string{snap.Facts.Important[0].Description, snap.Facts.Location[0].Description, snap.Facts.NPC[0].Description}
	for _, s := range snap.History.CycleSummaries {
		texts = append(texts, s.Summary)
	}
	texts = append(texts, snap.History.MessageSummaries...)
	for _, text := range texts {
		assert.Equal(t, limits.MaxTextLength, len([]rune(text)))
		assert.True(t, strings.HasSuffix(text, "..."), text)
	}
	assert.True(t, strings.HasPrefix(snap.History.MessageSummaries[0], "Message 2 "), "oldest of the latest five first")
}

func TestContextAssembler_UnknownLocation(t *testing.T) {
	repo, game := setupTestStore(t)
	ctx := t.Context()
	a := NewContextAssembler(repo, ContextLimits{}, nil)

	t.Run("placeholder", func(t *testing.T) {
		snap, err := a.Build(ctx, game.ID, entities.TurnInputs{})
		require.NoError(t, err)
		assert.True(t, snap.CurrentLocation.Unknown)
		assert.Equal(t, UnknownLocationName, snap.CurrentLocation.Name)
		assert.Empty(t, snap.NPCsPresent)
		assert.Equal(t, 1, snap.Cycle)
	})

	t.Run("requested name kept", func(t *testing.T) {
		snap, err := a.Build(ctx, game.ID, entities.TurnInputs{LocationName: "Moon Base"})
		require.NoError(t, err)
		assert.True(t, snap.CurrentLocation.Unknown)
		assert.Equal(t, "Moon Base", snap.CurrentLocation.Name)
	})

	t.Run("unknown game", func(t *testing.T) {
		_, err := a.Build(ctx, "missing", entities.TurnInputs{})
		assert.ErrorIs(t, err, entities.ErrGameNotFound)
	})
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"  padded  ", 10, "padded"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer sentence", 10, "a longe..."},
		{"abcdef", 3, "abc"},
		{"héllo wörld", 8, "héllo..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.n), tt.in)
	}
}
