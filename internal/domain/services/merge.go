package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

// Subtask names one extraction pass over a narrative segment.
type Subtask string

const (
	SubtaskSummary          Subtask = "summary"
	SubtaskProtagonistState Subtask = "protagonist_state"
	SubtaskEntities         Subtask = "entities"
	SubtaskObjects          Subtask = "objects"
	SubtaskFacts            Subtask = "facts"
	SubtaskRelations        Subtask = "relations"
	SubtaskCommitments      Subtask = "commitments"
)

// Partial is the typed result of one subtask. Each kind contributes only the
// payload fields it owns.
type Partial interface {
	Subtask() Subtask
	payload() entities.ExtractionPayload
}

// SummaryPartial carries the segment summary and the scene passthrough.
type SummaryPartial struct {
	SegmentSummary     string   `json:"segment_summary"`
	CurrentLocationRef string   `json:"current_location_ref"`
	KeyNPCsPresent     []string `json:"key_npcs_present"`
}

// ProtagonistStatePartial carries gauge, credit and inventory movements.
type ProtagonistStatePartial struct {
	GaugeChanges       []entities.GaugeChange     `json:"gauge_changes"`
	CreditTransactions []entities.CreditChange    `json:"credit_transactions"`
	InventoryChanges   []entities.InventoryChange `json:"inventory_changes"`
	EntitiesUpdated    []entities.EntityUpdated   `json:"entities_updated"`
}

// EntitiesPartial carries new and changed entities.
type EntitiesPartial struct {
	EntitiesCreated []entities.EntityCreated `json:"entities_created"`
	EntitiesUpdated []entities.EntityUpdated `json:"entities_updated"`
}

// ObjectsPartial carries objects created for inventory changes.
type ObjectsPartial struct {
	EntitiesCreated []entities.EntityCreated `json:"entities_created"`
}

// FactsPartial carries the facts of the segment.
type FactsPartial struct {
	Facts []entities.FactRecord `json:"facts"`
}

// RelationsPartial carries new relations and level changes.
type RelationsPartial struct {
	RelationsCreated []entities.RelationCreated `json:"relations_created"`
	RelationsUpdated []entities.RelationUpdated `json:"relations_updated"`
}

// CommitmentsPartial carries narrative promises and scheduled events.
type CommitmentsPartial struct {
	CommitmentsCreated  []entities.CommitmentCreated  `json:"commitments_created"`
	CommitmentsResolved []entities.CommitmentResolved `json:"commitments_resolved"`
	EventsScheduled     []entities.EventScheduled     `json:"events_scheduled"`
}

func (SummaryPartial) Subtask() Subtask          { return SubtaskSummary }
func (ProtagonistStatePartial) Subtask() Subtask { return SubtaskProtagonistState }
func (EntitiesPartial) Subtask() Subtask         { return SubtaskEntities }
func (ObjectsPartial) Subtask() Subtask          { return SubtaskObjects }
func (FactsPartial) Subtask() Subtask            { return SubtaskFacts }
func (RelationsPartial) Subtask() Subtask        { return SubtaskRelations }
func (CommitmentsPartial) Subtask() Subtask      { return SubtaskCommitments }

func (p SummaryPartial) payload() entities.ExtractionPayload {
	return entities.ExtractionPayload{
		SegmentSummary:     p.SegmentSummary,
		CurrentLocationRef: p.CurrentLocationRef,
		KeyNPCsPresent:     p.KeyNPCsPresent,
	}
}

func (p ProtagonistStatePartial) payload() entities.ExtractionPayload {
	return entities.ExtractionPayload{
		GaugeChanges:       p.GaugeChanges,
		CreditTransactions: p.CreditTransactions,
		InventoryChanges:   p.InventoryChanges,
		EntitiesUpdated:    p.EntitiesUpdated,
	}
}

func (p EntitiesPartial) payload() entities.ExtractionPayload {
	return entities.ExtractionPayload{
		EntitiesCreated: p.EntitiesCreated,
		EntitiesUpdated: p.EntitiesUpdated,
	}
}

func (p ObjectsPartial) payload() entities.ExtractionPayload {
	return entities.ExtractionPayload{EntitiesCreated: p.EntitiesCreated}
}

func (p FactsPartial) payload() entities.ExtractionPayload {
	return entities.ExtractionPayload{Facts: p.Facts}
}

func (p RelationsPartial) payload() entities.ExtractionPayload {
	return entities.ExtractionPayload{
		RelationsCreated: p.RelationsCreated,
		RelationsUpdated: p.RelationsUpdated,
	}
}

func (p CommitmentsPartial) payload() entities.ExtractionPayload {
	return entities.ExtractionPayload{
		CommitmentsCreated:  p.CommitmentsCreated,
		CommitmentsResolved: p.CommitmentsResolved,
		EventsScheduled:     p.EventsScheduled,
	}
}

// DecodePartial decodes a subtask response into its typed partial.
func DecodePartial(task Subtask, raw string) (Partial, error) {
	data := []byte(strings.TrimSpace(raw))
	switch task {
	case SubtaskSummary:
		return decodePartial[SummaryPartial](task, data)
	case SubtaskProtagonistState:
		return decodePartial[ProtagonistStatePartial](task, data)
	case SubtaskEntities:
		return decodePartial[EntitiesPartial](task, data)
	case SubtaskObjects:
		return decodePartial[ObjectsPartial](task, data)
	case SubtaskFacts:
		return decodePartial[FactsPartial](task, data)
	case SubtaskRelations:
		return decodePartial[RelationsPartial](task, data)
	case SubtaskCommitments:
		return decodePartial[CommitmentsPartial](task, data)
	}
	return nil, fmt.Errorf("unknown subtask %q", task)
}

func decodePartial[T Partial](task Subtask, data []byte) (Partial, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", task, err)
	}
	return v, nil
}

// Combine merges two payloads. List fields are concatenated and scalar
// fields take the last non-empty value, which makes Combine associative with
// the empty payload as identity.
func Combine(a, b entities.ExtractionPayload) entities.ExtractionPayload {
	return entities.ExtractionPayload{
		Cycle:               lastNonZero(a.Cycle, b.Cycle),
		CurrentLocationRef:  lastNonEmpty(a.CurrentLocationRef, b.CurrentLocationRef),
		SegmentSummary:      lastNonEmpty(a.SegmentSummary, b.SegmentSummary),
		Facts:               concat(a.Facts, b.Facts),
		EntitiesCreated:     concat(a.EntitiesCreated, b.EntitiesCreated),
		EntitiesUpdated:     concat(a.EntitiesUpdated, b.EntitiesUpdated),
		RelationsCreated:    concat(a.RelationsCreated, b.RelationsCreated),
		RelationsUpdated:    concat(a.RelationsUpdated, b.RelationsUpdated),
		GaugeChanges:        concat(a.GaugeChanges, b.GaugeChanges),
		CreditTransactions:  concat(a.CreditTransactions, b.CreditTransactions),
		InventoryChanges:    concat(a.InventoryChanges, b.InventoryChanges),
		CommitmentsCreated:  concat(a.CommitmentsCreated, b.CommitmentsCreated),
		CommitmentsResolved: concat(a.CommitmentsResolved, b.CommitmentsResolved),
		EventsScheduled:     concat(a.EventsScheduled, b.EventsScheduled),
		KeyNPCsPresent:      concat(a.KeyNPCsPresent, b.KeyNPCsPresent),
	}
}

// Merge folds the partials into base with Combine, in order.
func Merge(base entities.ExtractionPayload, parts ...Partial) entities.ExtractionPayload {
	out := base
	for _, p := range parts {
		if p == nil {
			continue
		}
		out = Combine(out, p.payload())
	}
	return out
}

func concat[T any](a, b []T) []T {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func lastNonEmpty(a, b string) string {
	if strings.TrimSpace(b) != "" {
		return b
	}
	return a
}

func lastNonZero(a, b int) int {
	if b != 0 {
		return b
	}
	return a
}
