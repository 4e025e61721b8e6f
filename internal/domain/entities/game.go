package entities

import "time"

// Game is one narrative run. All world state is scoped to a game.
type Game struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CurrentCycle int       `json:"current_cycle"`
	CreatedAt    time.Time `json:"created_at"`
}

// MessageRole identifies the author of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one turn of the conversation. Seq orders messages within a game.
type Message struct {
	ID        string      `json:"id"`
	GameID    string      `json:"game_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Summary   string      `json:"summary,omitempty"`
	Cycle     int         `json:"cycle"`
	Seq       int64       `json:"seq"`
	CreatedAt time.Time   `json:"created_at"`
}

// CycleSummary is the persisted recap of one cycle.
type CycleSummary struct {
	GameID  string `json:"game_id"`
	Cycle   int    `json:"cycle"`
	Summary string `json:"summary"`
}

// CreditTransaction is one row of the protagonist's credit ledger.
type CreditTransaction struct {
	ID           string `json:"id"`
	GameID       string `json:"game_id"`
	Cycle        int    `json:"cycle"`
	Amount       int    `json:"amount"`
	Description  string `json:"description"`
	BalanceAfter int    `json:"balance_after"`
}
