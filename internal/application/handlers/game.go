package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
	"github.com/ersonp/lore-state/internal/domain/services"
)

// GameHandler handles game lifecycle commands.
type GameHandler struct {
	populator *services.Populator
	reader    *services.Reader
}

// NewGameHandler creates a new game handler.
func NewGameHandler(populator *services.Populator, reader *services.Reader) *GameHandler {
	return &GameHandler{
		populator: populator,
		reader:    reader,
	}
}

// HandleCreate creates an empty game at cycle 1.
func (h *GameHandler) HandleCreate(ctx context.Context, name string) (*entities.Game, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("game name is required")
	}
	return h.populator.CreateGame(ctx, name)
}

// HandleList lists every game.
func (h *GameHandler) HandleList(ctx context.Context) ([]*entities.Game, error) {
	return h.reader.Games(ctx)
}

// HandleResolve finds a game by ID, or else by case-insensitive name.
func (h *GameHandler) HandleResolve(ctx context.Context, ref string) (*entities.Game, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("game is required (use --game flag)")
	}

	game, err := h.reader.Game(ctx, ref)
	if err == nil {
		return game, nil
	}
	if !errors.Is(err, entities.ErrGameNotFound) {
		return nil, err
	}

	games, err := h.reader.Games(ctx)
	if err != nil {
		return nil, err
	}
	var matches []*entities.Game
	for _, g := range games {
		if strings.EqualFold(g.Name, ref) {
			matches = append(matches, g)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", entities.ErrGameNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%d games are named %q, use the game ID", len(matches), ref)
	}
}
