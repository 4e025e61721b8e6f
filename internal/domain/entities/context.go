package entities

// TurnInputs describes the turn a context snapshot is built for.
type TurnInputs struct {
	Cycle        int    `json:"cycle"` // 0 uses the game's current cycle
	LocationName string `json:"location_name"`
}

// ContextSnapshot is the bounded, ranked view of the world handed to the
// narrator for one turn.
type ContextSnapshot struct {
	GameID             string           `json:"game_id"`
	Cycle              int              `json:"cycle"`
	Protagonist        ProtagonistView  `json:"protagonist"`
	Inventory          []InventoryItem  `json:"inventory"`
	CurrentLocation    LocationView     `json:"current_location"`
	ConnectedLocations []LocationView   `json:"connected_locations"`
	NPCsPresent        []NPCView        `json:"npcs_present"`
	NPCsRelevant       []NPCView        `json:"npcs_relevant"`
	Commitments        []CommitmentView `json:"commitments"`
	Events             []EventView      `json:"events"`
	Facts              FactsView        `json:"facts"`
	History            HistoryView      `json:"history"`
}

type ProtagonistView struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Energy     float64  `json:"energy"`
	Morale     float64  `json:"morale"`
	Health     float64  `json:"health"`
	Credits    int      `json:"credits"`
	Skills     []string `json:"skills"`
	Occupation string   `json:"occupation,omitempty"`
	Employer   string   `json:"employer,omitempty"`
}

type InventoryItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Emotional   bool   `json:"emotional"`
	Description string `json:"description,omitempty"`
}

// LocationView is a location as shown to the narrator. Unknown is set for the
// placeholder returned when the current location is not in the world.
type LocationView struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Sector      string `json:"sector,omitempty"`
	Description string `json:"description,omitempty"`
	Unknown     bool   `json:"unknown,omitempty"`
}

type NPCView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Relation   string `json:"relation,omitempty"`
	Level      *int   `json:"level,omitempty"`
	Occupation string `json:"occupation,omitempty"`
	Mood       string `json:"mood,omitempty"`
}

type CommitmentView struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Description   string `json:"description"`
	DeadlineCycle *int   `json:"deadline_cycle,omitempty"`
}

type EventView struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	PlannedCycle int    `json:"planned_cycle"`
	PlannedTime  string `json:"planned_time,omitempty"`
	Location     string `json:"location,omitempty"`
}

type FactView struct {
	ID          string `json:"id"`
	Cycle       int    `json:"cycle"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Importance  int    `json:"importance"`
}

type FactsView struct {
	Important []FactView `json:"important"`
	Location  []FactView `json:"location"`
	NPC       []FactView `json:"npc"`
}

type CycleSummaryView struct {
	Cycle   int    `json:"cycle"`
	Summary string `json:"summary"`
}

type HistoryView struct {
	CycleSummaries   []CycleSummaryView `json:"cycle_summaries"`
	MessageSummaries []string           `json:"message_summaries"`
}
