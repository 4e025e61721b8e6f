package entities

import "fmt"

// CommitmentType classifies a narrative promise.
type CommitmentType string

const (
	CommitmentForeshadowing CommitmentType = "foreshadowing"
	CommitmentSecret        CommitmentType = "secret"
	CommitmentSetup         CommitmentType = "setup"
	CommitmentChekhovGun    CommitmentType = "chekhov_gun"
	CommitmentArc           CommitmentType = "arc"
)

// ParseCommitmentType validates a commitment type.
func ParseCommitmentType(s string) (CommitmentType, error) {
	t := CommitmentType(normalizeIdent(s))
	switch t {
	case CommitmentForeshadowing, CommitmentSecret, CommitmentSetup, CommitmentChekhovGun, CommitmentArc:
		return t, nil
	case "chekhov", "chekhovs_gun":
		return CommitmentChekhovGun, nil
	}
	return "", fmt.Errorf("%w: commitment type %q", ErrInvalidValue, s)
}

// Priority orders commitments in the context snapshot, lowest first.
func (t CommitmentType) Priority() int {
	switch t {
	case CommitmentArc:
		return 0
	case CommitmentSecret:
		return 1
	case CommitmentChekhovGun:
		return 2
	default:
		return 3
	}
}

// Commitment is a narrative promise tracked until it is paid off.
// Resolution is terminal.
type Commitment struct {
	ID            string         `json:"id"`
	GameID        string         `json:"game_id"`
	Type          CommitmentType `json:"type"`
	Description   string         `json:"description"`
	CreatedCycle  int            `json:"created_cycle"`
	DeadlineCycle *int           `json:"deadline_cycle,omitempty"`
	Resolved      bool           `json:"resolved"`
	ResolvedCycle *int           `json:"resolved_cycle,omitempty"`
	Resolution    string         `json:"resolution,omitempty"`
}
