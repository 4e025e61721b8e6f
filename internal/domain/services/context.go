package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"go.uber.org/zap"
)

// ContextLimits holds the caps and lookbacks of a context snapshot.
type ContextLimits struct {
	MaxConnectedLocations int
	MaxNPCsPresent        int
	MaxNPCsRelevant       int
	MaxCommitments        int
	MaxEvents             int
	MaxImportantFacts     int
	MaxLocationFacts      int
	MaxNPCFacts           int
	// ImportantMinLevel is the lowest importance of an "important" fact.
	ImportantMinLevel int
	ImportantLookback int
	// LocalLookback bounds the location and NPC fact queries.
	LocalLookback       int
	MaxCycleSummaries   int
	MaxMessageSummaries int
	MaxTextLength       int
}

// DefaultContextLimits returns the limits the narrator prompt is sized for.
func DefaultContextLimits() ContextLimits {
	return ContextLimits{
		MaxConnectedLocations: 10,
		MaxNPCsPresent:        5,
		MaxNPCsRelevant:       8,
		MaxCommitments:        10,
		MaxEvents:             5,
		MaxImportantFacts:     10,
		MaxLocationFacts:      5,
		MaxNPCFacts:           8,
		ImportantMinLevel:     4,
		ImportantLookback:     5,
		LocalLookback:         10,
		MaxCycleSummaries:     7,
		MaxMessageSummaries:   5,
		MaxTextLength:         200,
	}
}

// UnknownLocationName is shown when the protagonist's location is not known.
const UnknownLocationName = "Unknown location"

var (
	presenceRelations = []entities.RelationType{
		entities.RelationWorksAt,
		entities.RelationLivesAt,
		entities.RelationFrequents,
	}
	acquaintanceRelations = []entities.RelationType{
		entities.RelationKnows,
		entities.RelationFriendOf,
		entities.RelationRomantic,
		entities.RelationColleagueOf,
	}
)

// ContextAssembler builds the bounded snapshot of the world handed to the
// narrator for one turn. It only reads.
type ContextAssembler struct {
	store  ports.GraphReader
	limits ContextLimits
	logger *zap.Logger
}

// NewContextAssembler creates a new ContextAssembler. Zero limits take their
// default.
func NewContextAssembler(store ports.GraphReader, limits ContextLimits, logger *zap.Logger) *ContextAssembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextAssembler{
		store:  store,
		limits: limits.withDefaults(),
		logger: logger,
	}
}

func (l ContextLimits) withDefaults() ContextLimits {
	def := DefaultContextLimits()
	fill := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&l.MaxConnectedLocations, def.MaxConnectedLocations)
	fill(&l.MaxNPCsPresent, def.MaxNPCsPresent)
	fill(&l.MaxNPCsRelevant, def.MaxNPCsRelevant)
	fill(&l.MaxCommitments, def.MaxCommitments)
	fill(&l.MaxEvents, def.MaxEvents)
	fill(&l.MaxImportantFacts, def.MaxImportantFacts)
	fill(&l.MaxLocationFacts, def.MaxLocationFacts)
	fill(&l.MaxNPCFacts, def.MaxNPCFacts)
	fill(&l.ImportantMinLevel, def.ImportantMinLevel)
	fill(&l.ImportantLookback, def.ImportantLookback)
	fill(&l.LocalLookback, def.LocalLookback)
	fill(&l.MaxCycleSummaries, def.MaxCycleSummaries)
	fill(&l.MaxMessageSummaries, def.MaxMessageSummaries)
	fill(&l.MaxTextLength, def.MaxTextLength)
	return l
}

// Build assembles the snapshot of a game for one turn. When in.LocationName
// is empty the protagonist's current located_in target is used.
func (a *ContextAssembler) Build(ctx context.Context, gameID string, in entities.TurnInputs) (*entities.ContextSnapshot, error) {
	game, err := a.store.FindGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("finding game: %w", err)
	}
	if game == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrGameNotFound, gameID)
	}
	cycle := in.Cycle
	if cycle <= 0 {
		cycle = game.CurrentCycle
	}

	snap := &entities.ContextSnapshot{GameID: gameID, Cycle: cycle}

	pro, err := a.store.FindProtagonist(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("finding protagonist: %w", err)
	}
	if pro != nil {
		if snap.Protagonist, err = a.protagonist(ctx, pro); err != nil {
			return nil, err
		}
		if snap.Inventory, err = a.inventory(ctx, pro); err != nil {
			return nil, err
		}
	}

	location, err := a.currentLocation(ctx, gameID, pro, in.LocationName)
	if err != nil {
		return nil, err
	}
	snap.CurrentLocation = a.locationView(ctx, location, in.LocationName)

	var present []*entities.Entity
	if location != nil {
		connected, err := a.store.ConnectedLocations(ctx, location.ID, a.limits.MaxConnectedLocations)
		if err != nil {
			return nil, fmt.Errorf("listing connected locations: %w", err)
		}
		snap.ConnectedLocations = make([]entities.LocationView, 0, len(connected))
		for _, l := range connected {
			snap.ConnectedLocations = append(snap.ConnectedLocations, a.locationView(ctx, l, ""))
		}

		present, err = a.store.LinkedSources(ctx, location.ID, entities.EntityCharacter, presenceRelations, a.limits.MaxNPCsPresent)
		if err != nil {
			return nil, fmt.Errorf("listing present characters: %w", err)
		}
		snap.NPCsPresent = make([]entities.NPCView, 0, len(present))
		for _, npc := range present {
			snap.NPCsPresent = append(snap.NPCsPresent, a.npcView(ctx, npc, nil))
		}
	}

	if pro != nil {
		related, err := a.store.RelatedByLevel(ctx, pro.ID, entities.EntityCharacter, acquaintanceRelations, a.limits.MaxNPCsRelevant)
		if err != nil {
			return nil, fmt.Errorf("listing relevant characters: %w", err)
		}
		snap.NPCsRelevant = make([]entities.NPCView, 0, len(related))
		for _, r := range related {
			snap.NPCsRelevant = append(snap.NPCsRelevant, a.npcView(ctx, r.Entity, r.Relation))
		}
	}

	if snap.Commitments, err = a.commitments(ctx, gameID); err != nil {
		return nil, err
	}
	if snap.Events, err = a.events(ctx, gameID, cycle); err != nil {
		return nil, err
	}
	if snap.Facts, err = a.facts(ctx, gameID, cycle, location, present); err != nil {
		return nil, err
	}
	if snap.History, err = a.history(ctx, gameID, cycle); err != nil {
		return nil, err
	}

	a.logger.Debug("context built",
		zap.String("game_id", gameID),
		zap.Int("cycle", cycle),
		zap.String("location", snap.CurrentLocation.Name),
		zap.Int("npcs_present", len(snap.NPCsPresent)),
		zap.Int("facts", len(snap.Facts.Important)+len(snap.Facts.Location)+len(snap.Facts.NPC)))
	return snap, nil
}

func (a *ContextAssembler) protagonist(ctx context.Context, pro *entities.Entity) (entities.ProtagonistView, error) {
	view := entities.ProtagonistView{
		ID:     pro.ID,
		Name:   pro.Name,
		Energy: entities.GaugeMax,
		Morale: entities.GaugeMax,
		Health: entities.GaugeMax,
		Skills: []string{},
	}
	attrs, err := a.store.ActiveAttributes(ctx, pro.ID)
	if err != nil {
		return view, fmt.Errorf("reading protagonist attributes: %w", err)
	}
	for _, attr := range attrs {
		switch attr.Key {
		case entities.AttrEnergy:
			view.Energy = attr.Value.Num
		case entities.AttrMorale:
			view.Morale = attr.Value.Num
		case entities.AttrHealth:
			view.Health = attr.Value.Num
		case entities.AttrCredits:
			view.Credits = int(attr.Value.Num)
		case entities.AttrOccupation:
			view.Occupation = attr.Value.String()
		case entities.AttrSkills:
			skills, err := entities.ParseSkills(attr.Value)
			if err != nil {
				a.logger.Warn("unreadable skills", zap.String("entity_id", pro.ID), zap.Error(err))
				continue
			}
			view.Skills = entities.FormatSkills(skills)
		}
	}

	jobs, err := a.store.ListRelations(ctx, ports.RelationFilter{
		SourceID: pro.ID,
		Types:    []entities.RelationType{entities.RelationEmployedBy},
	})
	if err != nil {
		return view, fmt.Errorf("finding employer: %w", err)
	}
	if len(jobs) > 0 {
		employer, err := a.store.FindEntityByID(ctx, jobs[0].TargetEntityID)
		if err != nil {
			return view, fmt.Errorf("finding employer: %w", err)
		}
		if employer != nil && employer.Active() {
			view.Employer = employer.DisplayName()
		}
		if view.Occupation == "" && jobs[0].Attributes.Professional != nil {
			view.Occupation = jobs[0].Attributes.Professional.Position
		}
	}
	return view, nil
}

func (a *ContextAssembler) inventory(ctx context.Context, pro *entities.Entity) ([]entities.InventoryItem, error) {
	owned, err := a.store.ListRelations(ctx, ports.RelationFilter{
		SourceID: pro.ID,
		Types:    []entities.RelationType{entities.RelationOwns},
	})
	if err != nil {
		return nil, fmt.Errorf("listing inventory: %w", err)
	}
	items := make([]entities.InventoryItem, 0, len(owned))
	for _, rel := range owned {
		obj, err := a.store.FindEntityByID(ctx, rel.TargetEntityID)
		if err != nil {
			return nil, fmt.Errorf("finding item: %w", err)
		}
		if obj == nil || !obj.Active() {
			continue
		}
		item := entities.InventoryItem{ID: obj.ID, Name: obj.DisplayName(), Quantity: 1}
		if rel.Attributes.Ownership != nil {
			item.Quantity = rel.Attributes.Ownership.Quantity
		}
		attrs, err := a.store.ActiveAttributes(ctx, obj.ID)
		if err != nil {
			return nil, fmt.Errorf("reading item attributes: %w", err)
		}
		for _, attr := range attrs {
			switch attr.Key {
			case entities.AttrEmotionalSignificance:
				item.Emotional = attr.Value.Truthy()
			case entities.AttrDescription:
				item.Description = a.truncate(attr.Value.String())
			}
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

// currentLocation finds the location by exact name, falling back to where
// the protagonist is. It returns nil when neither is a known location.
func (a *ContextAssembler) currentLocation(ctx context.Context, gameID string, pro *entities.Entity, name string) (*entities.Entity, error) {
	if strings.TrimSpace(name) != "" {
		e, err := a.store.FindEntityByName(ctx, gameID, name)
		if err != nil {
			return nil, fmt.Errorf("finding location: %w", err)
		}
		if e == nil || e.Type != entities.EntityLocation {
			return nil, nil
		}
		return e, nil
	}
	if pro == nil {
		return nil, nil
	}
	rels, err := a.store.ListRelations(ctx, ports.RelationFilter{
		SourceID: pro.ID,
		Types:    []entities.RelationType{entities.RelationLocatedIn},
	})
	if err != nil {
		return nil, fmt.Errorf("finding protagonist location: %w", err)
	}
	if len(rels) == 0 {
		return nil, nil
	}
	e, err := a.store.FindEntityByID(ctx, rels[len(rels)-1].TargetEntityID)
	if err != nil {
		return nil, fmt.Errorf("finding location: %w", err)
	}
	if e == nil || !e.Active() {
		return nil, nil
	}
	return e, nil
}

func (a *ContextAssembler) locationView(ctx context.Context, loc *entities.Entity, requested string) entities.LocationView {
	if loc == nil {
		name := strings.TrimSpace(requested)
		if name == "" {
			name = UnknownLocationName
		}
		return entities.LocationView{Name: name, Unknown: true}
	}
	view := entities.LocationView{ID: loc.ID, Name: loc.DisplayName()}
	if details, err := a.store.FindDetails(ctx, loc.ID); err == nil && details != nil {
		view.Sector = details.Sector()
	}
	if desc, err := a.store.ActiveAttribute(ctx, loc.ID, entities.AttrDescription); err == nil && desc != nil {
		view.Description = a.truncate(desc.Value.String())
	}
	return view
}

func (a *ContextAssembler) npcView(ctx context.Context, npc *entities.Entity, rel *entities.Relationship) entities.NPCView {
	view := entities.NPCView{ID: npc.ID, Name: npc.DisplayName()}
	if rel != nil {
		view.Relation = string(rel.Type)
		view.Level = rel.Attributes.Level()
	}
	attrs, err := a.store.ActiveAttributes(ctx, npc.ID)
	if err != nil {
		a.logger.Warn("reading character attributes", zap.String("entity_id", npc.ID), zap.Error(err))
		return view
	}
	for _, attr := range attrs {
		switch attr.Key {
		case entities.AttrOccupation:
			view.Occupation = attr.Value.String()
		case entities.AttrMood:
			view.Mood = attr.Value.String()
		}
	}
	return view
}

func (a *ContextAssembler) commitments(ctx context.Context, gameID string) ([]entities.CommitmentView, error) {
	open, err := a.store.ListCommitments(ctx, gameID, true, a.limits.MaxCommitments)
	if err != nil {
		return nil, fmt.Errorf("listing commitments: %w", err)
	}
	views := make([]entities.CommitmentView, 0, len(open))
	for _, c := range open {
		views = append(views, entities.CommitmentView{
			ID:            c.ID,
			Type:          string(c.Type),
			Description:   a.truncate(c.Description),
			DeadlineCycle: c.DeadlineCycle,
		})
	}
	return views, nil
}

func (a *ContextAssembler) events(ctx context.Context, gameID string, cycle int) ([]entities.EventView, error) {
	pending, err := a.store.ListEvents(ctx, ports.EventFilter{
		GameID:    gameID,
		Status:    entities.EventPending,
		FromCycle: cycle,
		Limit:     a.limits.MaxEvents,
	})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	views := make([]entities.EventView, 0, len(pending))
	for _, e := range pending {
		view := entities.EventView{
			ID:           e.ID,
			Title:        e.Title,
			Description:  a.truncate(e.Description),
			PlannedCycle: e.PlannedCycle,
			PlannedTime:  e.PlannedTime,
		}
		if e.LocationID != "" {
			loc, err := a.store.FindEntityByID(ctx, e.LocationID)
			if err != nil {
				return nil, fmt.Errorf("finding event location: %w", err)
			}
			if loc != nil {
				view.Location = loc.DisplayName()
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func (a *ContextAssembler) facts(ctx context.Context, gameID string, cycle int, location *entities.Entity, present []*entities.Entity) (entities.FactsView, error) {
	view := entities.FactsView{
		Important: []entities.FactView{},
		Location:  []entities.FactView{},
		NPC:       []entities.FactView{},
	}
	lookback := func(n int) int { return max(1, cycle-n) }

	important, err := a.store.ListFacts(ctx, ports.FactFilter{
		GameID:        gameID,
		MinCycle:      lookback(a.limits.ImportantLookback),
		MaxCycle:      cycle,
		MinImportance: a.limits.ImportantMinLevel,
		Limit:         a.limits.MaxImportantFacts,
	})
	if err != nil {
		return view, fmt.Errorf("listing important facts: %w", err)
	}
	view.Important = a.factViews(important)

	if location != nil {
		local, err := a.store.ListFacts(ctx, ports.FactFilter{
			GameID:     gameID,
			MinCycle:   lookback(a.limits.LocalLookback),
			MaxCycle:   cycle,
			LocationID: location.ID,
			Limit:      a.limits.MaxLocationFacts,
		})
		if err != nil {
			return view, fmt.Errorf("listing location facts: %w", err)
		}
		view.Location = a.factViews(local)
	}

	if len(present) > 0 {
		ids := make([]string, 0, len(present))
		for _, npc := range present {
			ids = append(ids, npc.ID)
		}
		npcFacts, err := a.store.ListFacts(ctx, ports.FactFilter{
			GameID:         gameID,
			MinCycle:       lookback(a.limits.LocalLookback),
			MaxCycle:       cycle,
			ParticipantIDs: ids,
			Limit:          a.limits.MaxNPCFacts,
		})
		if err != nil {
			return view, fmt.Errorf("listing character facts: %w", err)
		}
		view.NPC = a.factViews(npcFacts)
	}
	return view, nil
}

func (a *ContextAssembler) factViews(facts []*entities.Fact) []entities.FactView {
	views := make([]entities.FactView, 0, len(facts))
	for _, f := range facts {
		views = append(views, entities.FactView{
			ID:          f.ID,
			Cycle:       f.Cycle,
			Type:        string(f.Type),
			Description: a.truncate(f.Description),
			Importance:  f.Importance,
		})
	}
	return views
}

func (a *ContextAssembler) history(ctx context.Context, gameID string, cycle int) (entities.HistoryView, error) {
	view := entities.HistoryView{
		CycleSummaries:   []entities.CycleSummaryView{},
		MessageSummaries: []string{},
	}
	summaries, err := a.store.CycleSummaries(ctx, gameID, cycle, a.limits.MaxCycleSummaries)
	if err != nil {
		return view, fmt.Errorf("listing cycle summaries: %w", err)
	}
	for _, s := range summaries {
		view.CycleSummaries = append(view.CycleSummaries, entities.CycleSummaryView{
			Cycle:   s.Cycle,
			Summary: a.truncate(s.Summary),
		})
	}

	messages, err := a.store.RecentMessages(ctx, gameID, true, a.limits.MaxMessageSummaries)
	if err != nil {
		return view, fmt.Errorf("listing messages: %w", err)
	}
	for _, m := range messages {
		view.MessageSummaries = append(view.MessageSummaries, a.truncate(m.Summary))
	}
	return view, nil
}

func (a *ContextAssembler) truncate(s string) string {
	return Truncate(s, a.limits.MaxTextLength)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
