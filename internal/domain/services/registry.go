package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
)

// protagonistRefs are references that always mean the protagonist.
var protagonistRefs = map[string]bool{
	"protagonist": true,
	"player":      true,
	"the player":  true,
}

type registryKey struct {
	ref          string
	expectedType entities.EntityType
}

// Registry is the name-to-entity cache of one extraction batch. It is loaded
// once per batch and never shared across batches or games.
type Registry struct {
	gameID   string
	floor    float64
	list     []*entities.Entity
	byID     map[string]*entities.Entity
	added    []string
	resolved map[registryKey]Resolution
}

// LoadRegistry reads every active entity of a game.
func LoadRegistry(ctx context.Context, reader ports.GraphReader, gameID string, floor float64) (*Registry, error) {
	list, err := reader.ListEntities(ctx, gameID, ports.EntityFilter{})
	if err != nil {
		return nil, fmt.Errorf("loading entities: %w", err)
	}
	r := &Registry{
		gameID:   gameID,
		floor:    floor,
		byID:     make(map[string]*entities.Entity, len(list)),
		resolved: make(map[registryKey]Resolution),
	}
	for _, e := range list {
		r.list = append(r.list, e)
		r.byID[e.ID] = e
	}
	return r, nil
}

// Resolve resolves a reference by ID, protagonist keyword or name.
func (r *Registry) Resolve(ref string, expectedType entities.EntityType) Resolution {
	if e, ok := r.byID[ref]; ok && e.Active() {
		if expectedType == "" || e.Type == expectedType {
			return Resolution{Status: Resolved, Entity: e, Tier: TierExact, Score: 1}
		}
	}

	key := registryKey{ref: entities.NormalizeName(ref), expectedType: expectedType}
	if res, ok := r.resolved[key]; ok {
		return res
	}

	if protagonistRefs[key.ref] && (expectedType == "" || expectedType == entities.EntityProtagonist) {
		if p := r.Protagonist(); p != nil {
			res := Resolution{Status: Resolved, Entity: p, Tier: TierAlias, Score: 1}
			r.resolved[key] = res
			return res
		}
	}

	res := ResolveEntityRef(r.list, ref, expectedType, r.floor)
	r.resolved[key] = res
	return res
}

// Protagonist returns the protagonist, or nil.
func (r *Registry) Protagonist() *entities.Entity {
	for _, e := range r.list {
		if e.Type == entities.EntityProtagonist && e.Active() {
			return e
		}
	}
	return nil
}

// Get returns a cached entity by ID.
func (r *Registry) Get(id string) *entities.Entity {
	return r.byID[id]
}

// Add registers an entity created during the batch.
func (r *Registry) Add(e *entities.Entity) {
	if _, ok := r.byID[e.ID]; ok {
		return
	}
	r.list = append(r.list, e)
	r.byID[e.ID] = e
	r.added = append(r.added, e.ID)
	clear(r.resolved)
}

// Mark returns a point Forget can return to.
func (r *Registry) Mark() int {
	return len(r.added)
}

// Forget drops the entities added since mark, after their transaction was
// rolled back.
func (r *Registry) Forget(mark int) {
	if mark >= len(r.added) {
		return
	}
	drop := make(map[string]bool, len(r.added)-mark)
	for _, id := range r.added[mark:] {
		drop[id] = true
		delete(r.byID, id)
	}
	r.added = r.added[:mark]

	kept := r.list[:0]
	for _, e := range r.list {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	r.list = kept
	clear(r.resolved)
}

// Names returns the names of all cached entities, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.list))
	for _, e := range r.list {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}
