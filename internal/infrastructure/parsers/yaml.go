package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ersonp/lore-state/internal/domain/entities"
)

// YAMLParser parses YAML documents. They are converted to JSON first so the
// field names and value shapes are exactly those of the JSON form.
type YAMLParser struct{}

// ParseSeed reads a world seed from YAML.
func (p *YAMLParser) ParseSeed(r io.Reader) (*entities.WorldSeed, error) {
	data, err := yamlToJSON(r)
	if err != nil {
		return nil, err
	}
	return (&JSONParser{}).ParseSeed(bytes.NewReader(data))
}

// ParsePayload reads an extraction payload from YAML.
func (p *YAMLParser) ParsePayload(r io.Reader) (*entities.ExtractionPayload, error) {
	data, err := yamlToJSON(r)
	if err != nil {
		return nil, err
	}
	return (&JSONParser{}).ParsePayload(bytes.NewReader(data))
}

func yamlToJSON(r io.Reader) ([]byte, error) {
	var doc any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting YAML: %w", err)
	}
	return data, nil
}
