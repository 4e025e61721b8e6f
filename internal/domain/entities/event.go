package entities

import "fmt"

// EventStatus is the lifecycle state of a scheduled event.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s EventStatus) IsTerminal() bool {
	return s == EventCompleted || s == EventCancelled
}

// ParseEventStatus validates an event status.
func ParseEventStatus(s string) (EventStatus, error) {
	st := EventStatus(NormalizeName(s))
	switch st {
	case EventPending, EventCompleted, EventCancelled:
		return st, nil
	case "canceled":
		return EventCancelled, nil
	}
	return "", fmt.Errorf("%w: event status %q", ErrInvalidValue, s)
}

// ScheduledEvent is something planned to happen at a later cycle.
type ScheduledEvent struct {
	ID             string      `json:"id"`
	GameID         string      `json:"game_id"`
	Title          string      `json:"title"`
	Description    string      `json:"description,omitempty"`
	PlannedCycle   int         `json:"planned_cycle"`
	PlannedTime    string      `json:"planned_time,omitempty"`
	LocationID     string      `json:"location_id,omitempty"`
	ParticipantIDs []string    `json:"participant_ids,omitempty"`
	Status         EventStatus `json:"status"`
	CreatedCycle   int         `json:"created_cycle"`
	ClosedCycle    *int        `json:"closed_cycle,omitempty"`
}
