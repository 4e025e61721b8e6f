// Package parsers reads world seeds and extraction payloads from files.
package parsers

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

// Parser decodes the documents accepted by lore import and lore apply.
type Parser interface {
	// ParseSeed reads a full world description.
	ParseSeed(r io.Reader) (*entities.WorldSeed, error)

	// ParsePayload reads one extraction payload.
	ParsePayload(r io.Reader) (*entities.ExtractionPayload, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "yaml".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "yaml", "yml":
		return &YAMLParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	return ForFormat(ext)
}
