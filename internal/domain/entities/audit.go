package entities

import "time"

// ChangeAction names a populator mutation recorded in the change log.
type ChangeAction string

const (
	ActionGameCreated        ChangeAction = "game_created"
	ActionEntityCreated      ChangeAction = "entity_created"
	ActionEntityRemoved      ChangeAction = "entity_removed"
	ActionAttributeSet       ChangeAction = "attribute_set"
	ActionRelationCreated    ChangeAction = "relation_created"
	ActionRelationUpdated    ChangeAction = "relation_updated"
	ActionRelationEnded      ChangeAction = "relation_ended"
	ActionFactCreated        ChangeAction = "fact_created"
	ActionCommitmentCreated  ChangeAction = "commitment_created"
	ActionCommitmentResolved ChangeAction = "commitment_resolved"
	ActionEventScheduled     ChangeAction = "event_scheduled"
	ActionEventClosed        ChangeAction = "event_closed"
	ActionCreditTransaction  ChangeAction = "credit_transaction"
	ActionRollback           ChangeAction = "rollback"
)

// ChangeEntry represents a logged mutation of a game's world state.
type ChangeEntry struct {
	ID        int64          `json:"id"`
	GameID    string         `json:"game_id"`
	Cycle     int            `json:"cycle"`
	Action    ChangeAction   `json:"action"`
	TargetID  string         `json:"target_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
