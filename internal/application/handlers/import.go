package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
	"github.com/ersonp/lore-state/internal/infrastructure/parsers"
)

// ImportHandler populates games from seed files and applies payload files.
type ImportHandler struct {
	populator *services.Populator
	reader    *services.Reader
	narrator  *services.Narrator
}

// NewImportHandler creates a new import handler. narrator may be nil when no
// text generator is configured; HandleGenerate then fails.
func NewImportHandler(populator *services.Populator, reader *services.Reader, narrator *services.Narrator) *ImportHandler {
	return &ImportHandler{
		populator: populator,
		reader:    reader,
		narrator:  narrator,
	}
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	Format string // "json", "yaml", or "auto"
	DryRun bool   // Parse and validate without writing
	// Cycle overrides the cycle of a payload file. Zero keeps the file's
	// cycle, or the game's current cycle when the file has none.
	Cycle int
}

// SeedResult contains the result of populating a world.
type SeedResult struct {
	Seed  *entities.WorldSeed
	Stats *services.ApplyStats
}

// HandleSeed populates an empty game from a world seed file.
func (h *ImportHandler) HandleSeed(ctx context.Context, gameID, filePath string, opts ImportOptions) (*SeedResult, error) {
	parser, err := parserFor(filePath, opts.Format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	seed, err := parser.ParseSeed(file)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}

	if opts.DryRun {
		return &SeedResult{Seed: seed, Stats: &services.ApplyStats{}}, nil
	}

	stats, err := h.populator.PopulateWorld(ctx, gameID, seed)
	if err != nil {
		return nil, err
	}
	return &SeedResult{Seed: seed, Stats: stats}, nil
}

// HandleGenerate asks the text generator for a world and populates the game.
func (h *ImportHandler) HandleGenerate(ctx context.Context, gameID, premise string) (*SeedResult, error) {
	if h.narrator == nil {
		return nil, errors.New("world generation requires an LLM")
	}
	seed, stats, err := h.narrator.GenerateWorld(ctx, gameID, premise)
	if err != nil {
		return nil, err
	}
	return &SeedResult{Seed: seed, Stats: stats}, nil
}

// HandlePayload applies an extraction payload file to a game.
func (h *ImportHandler) HandlePayload(ctx context.Context, gameID, filePath string, opts ImportOptions) (*services.ApplyResult, error) {
	parser, err := parserFor(filePath, opts.Format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	payload, err := parser.ParsePayload(file)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}

	cycle := payload.Cycle
	if opts.Cycle > 0 {
		cycle = opts.Cycle
	}
	if cycle == 0 {
		game, err := h.reader.Game(ctx, gameID)
		if err != nil {
			return nil, err
		}
		cycle = game.CurrentCycle
	}
	payload.StampCycle(cycle)

	if opts.DryRun {
		result := &services.ApplyResult{GameID: gameID, Cycle: cycle}
		var verr *entities.ValidationError
		if errors.As(payload.Validate(), &verr) {
			result.Errors = verr.Items
			result.Degraded = true
		}
		return result, nil
	}

	return h.populator.ApplyExtraction(ctx, gameID, payload)
}

func parserFor(filePath, format string) (parsers.Parser, error) {
	var parser parsers.Parser
	if format == "" || format == "auto" {
		parser = parsers.ForFile(filePath)
	} else {
		parser = parsers.ForFormat(format)
	}

	if parser == nil {
		return nil, fmt.Errorf("unsupported format for file: %s", filePath)
	}
	return parser, nil
}
