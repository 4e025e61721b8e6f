package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/ports"
	"go.uber.org/zap"
)

// NarrateOptions controls one narrated turn.
type NarrateOptions struct {
	Turn entities.TurnInputs
	// Hints select the extraction subtasks run over the narration. Ingest
	// is skipped when no pipeline is configured.
	Hints  Hints
	Ingest bool
}

// NarrationResult is the outcome of one narrated turn.
type NarrationResult struct {
	Text     string          `json:"text"`
	Cycle    int             `json:"cycle"`
	Player   string          `json:"player_message_id"`
	Narrator string          `json:"narrator_message_id"`
	Pipeline *PipelineResult `json:"pipeline,omitempty"`
}

// Narrator runs game turns: it assembles the context, streams the narration
// and feeds the result back into the world.
type Narrator struct {
	llm       ports.TextGenerator
	assembler *ContextAssembler
	populator *Populator
	pipeline  *ExtractionPipeline
	logger    *zap.Logger
}

// NewNarrator creates a new Narrator. pipeline may be nil.
func NewNarrator(llm ports.TextGenerator, assembler *ContextAssembler, populator *Populator, pipeline *ExtractionPipeline, logger *zap.Logger) *Narrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Narrator{
		llm:       llm,
		assembler: assembler,
		populator: populator,
		pipeline:  pipeline,
		logger:    logger,
	}
}

// Narrate plays one turn. Fragments are passed to onFragment as they arrive;
// onFragment may be nil. Both messages are recorded, the narrator's with the
// segment summary when the turn is ingested.
func (n *Narrator) Narrate(ctx context.Context, gameID, playerInput string, opts NarrateOptions, onFragment func(string) error) (*NarrationResult, error) {
	if strings.TrimSpace(playerInput) == "" {
		return nil, errors.New("player input is empty")
	}
	snapshot, err := n.assembler.Build(ctx, gameID, opts.Turn)
	if err != nil {
		return nil, fmt.Errorf("building context: %w", err)
	}

	player := &entities.Message{
		ID:        newID(),
		GameID:    gameID,
		Role:      entities.RoleUser,
		Content:   playerInput,
		Cycle:     snapshot.Cycle,
		CreatedAt: time.Now(),
	}
	if err := n.populator.RecordMessage(ctx, player); err != nil {
		return nil, err
	}

	req, err := narrationRequest(snapshot, playerInput)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	err = n.llm.Stream(ctx, req, func(fragment string) error {
		text.WriteString(fragment)
		if onFragment != nil {
			return onFragment(fragment)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("narrating: %w", err)
	}

	result := &NarrationResult{
		Text:   text.String(),
		Cycle:  snapshot.Cycle,
		Player: player.ID,
	}

	narration := &entities.Message{
		ID:        newID(),
		GameID:    gameID,
		Role:      entities.RoleAssistant,
		Content:   result.Text,
		Cycle:     snapshot.Cycle,
		CreatedAt: time.Now(),
	}
	if opts.Ingest && n.pipeline != nil {
		in := &PipelineInput{
			GameID:      gameID,
			Narrative:   result.Text,
			Hints:       opts.Hints,
			Cycle:       snapshot.Cycle,
			NPCsPresent: npcNames(snapshot.NPCsPresent),
		}
		if !snapshot.CurrentLocation.Unknown {
			in.LocationRef = snapshot.CurrentLocation.Name
		}
		res, err := n.pipeline.Ingest(ctx, in)
		if err != nil {
			n.logger.Warn("ingesting narration failed", zap.String("game_id", gameID), zap.Error(err))
		} else {
			result.Pipeline = res
			narration.Summary = res.Payload.SegmentSummary
		}
	}
	if err := n.populator.RecordMessage(ctx, narration); err != nil {
		return nil, err
	}
	result.Narrator = narration.ID
	return result, nil
}

// GenerateWorld asks the text generator for a world seed and populates the
// game with it.
func (n *Narrator) GenerateWorld(ctx context.Context, gameID, premise string) (*entities.WorldSeed, *ApplyStats, error) {
	raw, err := n.llm.Generate(ctx, worldRequest(premise))
	if err != nil {
		return nil, nil, fmt.Errorf("generating world: %w", err)
	}
	var seed entities.WorldSeed
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &seed); err != nil {
		return nil, nil, fmt.Errorf("parsing world seed: %w", err)
	}
	stats, err := n.populator.PopulateWorld(ctx, gameID, &seed)
	if err != nil {
		return nil, nil, err
	}
	return &seed, stats, nil
}

func npcNames(views []entities.NPCView) []string {
	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.Name)
	}
	return names
}
