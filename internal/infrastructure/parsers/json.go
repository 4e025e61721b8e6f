package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

// JSONParser parses JSON documents.
type JSONParser struct{}

// ParseSeed reads a world seed from JSON.
func (p *JSONParser) ParseSeed(r io.Reader) (*entities.WorldSeed, error) {
	var seed entities.WorldSeed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if err := checkSeed(&seed); err != nil {
		return nil, err
	}
	return &seed, nil
}

// ParsePayload reads an extraction payload from JSON.
func (p *JSONParser) ParsePayload(r io.Reader) (*entities.ExtractionPayload, error) {
	var payload entities.ExtractionPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return &payload, nil
}

// checkSeed rejects seeds that cannot produce a playable world.
func checkSeed(seed *entities.WorldSeed) error {
	if strings.TrimSpace(seed.Protagonist.Name) == "" {
		return errors.New("seed has no protagonist name")
	}
	return nil
}
