// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for lore configuration.
	DefaultConfigDir = ".lore"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultDatabaseFile is the default SQLite file name inside DefaultConfigDir.
	DefaultDatabaseFile = "lore.db"
)

// Config holds static configuration, built once at process start and passed
// explicitly to every constructor.
type Config struct {
	LLM       LLMConfig       `yaml:"llm,omitempty"`
	Embedder  EmbedderConfig  `yaml:"embedder,omitempty"`
	Qdrant    QdrantConfig    `yaml:"qdrant,omitempty"`
	SQLite    SQLiteConfig    `yaml:"sqlite,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
	Pipeline  PipelineConfig  `yaml:"pipeline,omitempty"`
	Context   ContextConfig   `yaml:"context,omitempty"`
	Populator PopulatorConfig `yaml:"populator,omitempty"`
}

// LLMConfig holds configuration for the text generator.
type LLMConfig struct {
	Provider    string  `yaml:"provider,omitempty" envconfig:"LORE_LLM_PROVIDER"`
	Model       string  `yaml:"model,omitempty" envconfig:"LORE_LLM_MODEL"`
	APIKey      string  `yaml:"api_key,omitempty" envconfig:"LORE_LLM_API_KEY"`
	BaseURL     string  `yaml:"base_url,omitempty" envconfig:"LORE_LLM_BASE_URL"`
	Temperature float32 `yaml:"temperature,omitempty" envconfig:"LORE_LLM_TEMPERATURE"`
}

// EmbedderConfig holds configuration for the embedding provider.
type EmbedderConfig struct {
	Provider string `yaml:"provider,omitempty" envconfig:"LORE_EMBEDDER_PROVIDER"`
	Model    string `yaml:"model,omitempty" envconfig:"LORE_EMBEDDER_MODEL"`
	APIKey   string `yaml:"api_key,omitempty" envconfig:"LORE_EMBEDDER_API_KEY"`
	BaseURL  string `yaml:"base_url,omitempty" envconfig:"LORE_EMBEDDER_BASE_URL"`
}

// QdrantConfig holds configuration for the fact index. An empty Host
// disables semantic recall.
type QdrantConfig struct {
	Host       string `yaml:"host,omitempty" envconfig:"LORE_QDRANT_HOST"`
	Port       int    `yaml:"port,omitempty" envconfig:"LORE_QDRANT_PORT"`
	Collection string `yaml:"collection,omitempty" envconfig:"LORE_QDRANT_COLLECTION"`
	APIKey     string `yaml:"api_key,omitempty" envconfig:"LORE_QDRANT_API_KEY"`
}

// Enabled reports whether a Qdrant host is configured.
func (q QdrantConfig) Enabled() bool {
	return q.Host != ""
}

// SQLiteConfig holds configuration for the SQLite store.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	Path string `yaml:"path,omitempty" envconfig:"LORE_SQLITE_PATH"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" envconfig:"LORE_LOG_LEVEL"`
	Format string `yaml:"format,omitempty" envconfig:"LORE_LOG_FORMAT"` // console or json
}

// PipelineConfig tunes the extraction pipeline.
type PipelineConfig struct {
	// MaxConcurrency bounds the subtasks running at once within a phase.
	MaxConcurrency int `yaml:"max_concurrency,omitempty" envconfig:"LORE_PIPELINE_MAX_CONCURRENCY"`
}

// ContextConfig holds the caps and lookbacks of the context snapshot.
type ContextConfig struct {
	MaxConnectedLocations int `yaml:"max_connected_locations,omitempty" envconfig:"LORE_CONTEXT_MAX_CONNECTED_LOCATIONS"`
	MaxNPCsPresent        int `yaml:"max_npcs_present,omitempty" envconfig:"LORE_CONTEXT_MAX_NPCS_PRESENT"`
	MaxNPCsRelevant       int `yaml:"max_npcs_relevant,omitempty" envconfig:"LORE_CONTEXT_MAX_NPCS_RELEVANT"`
	MaxCommitments        int `yaml:"max_commitments,omitempty" envconfig:"LORE_CONTEXT_MAX_COMMITMENTS"`
	MaxEvents             int `yaml:"max_events,omitempty" envconfig:"LORE_CONTEXT_MAX_EVENTS"`
	MaxImportantFacts     int `yaml:"max_important_facts,omitempty" envconfig:"LORE_CONTEXT_MAX_IMPORTANT_FACTS"`
	MaxLocationFacts      int `yaml:"max_location_facts,omitempty" envconfig:"LORE_CONTEXT_MAX_LOCATION_FACTS"`
	MaxNPCFacts           int `yaml:"max_npc_facts,omitempty" envconfig:"LORE_CONTEXT_MAX_NPC_FACTS"`
	ImportantMinLevel     int `yaml:"important_min_level,omitempty" envconfig:"LORE_CONTEXT_IMPORTANT_MIN_LEVEL"`
	ImportantLookback     int `yaml:"important_lookback,omitempty" envconfig:"LORE_CONTEXT_IMPORTANT_LOOKBACK"`
	LocalLookback         int `yaml:"local_lookback,omitempty" envconfig:"LORE_CONTEXT_LOCAL_LOOKBACK"`
	MaxCycleSummaries     int `yaml:"max_cycle_summaries,omitempty" envconfig:"LORE_CONTEXT_MAX_CYCLE_SUMMARIES"`
	MaxMessageSummaries   int `yaml:"max_message_summaries,omitempty" envconfig:"LORE_CONTEXT_MAX_MESSAGE_SUMMARIES"`
	MaxTextLength         int `yaml:"max_text_length,omitempty" envconfig:"LORE_CONTEXT_MAX_TEXT_LENGTH"`
}

// PopulatorConfig holds write-side policies.
type PopulatorConfig struct {
	AllowNegativeCredits bool    `yaml:"allow_negative_credits" envconfig:"LORE_POPULATOR_ALLOW_NEGATIVE_CREDITS"`
	SimilarityFloor      float64 `yaml:"similarity_floor,omitempty" envconfig:"LORE_POPULATOR_SIMILARITY_FLOOR"`
	StartingCredits      int     `yaml:"starting_credits,omitempty" envconfig:"LORE_POPULATOR_STARTING_CREDITS"`
}

// DefaultContext returns the context caps the narrator prompt is sized for.
func DefaultContext() ContextConfig {
	return ContextConfig{
		MaxConnectedLocations: 10,
		MaxNPCsPresent:        5,
		MaxNPCsRelevant:       8,
		MaxCommitments:        10,
		MaxEvents:             5,
		MaxImportantFacts:     10,
		MaxLocationFacts:      5,
		MaxNPCFacts:           8,
		ImportantMinLevel:     4,
		ImportantLookback:     5,
		LocalLookback:         10,
		MaxCycleSummaries:     7,
		MaxMessageSummaries:   5,
		MaxTextLength:         200,
	}
}

// DefaultPopulator returns the default write policies.
func DefaultPopulator() PopulatorConfig {
	return PopulatorConfig{
		AllowNegativeCredits: true,
		SimilarityFloor:      0.8,
		StartingCredits:      1400,
	}
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
		},
		Embedder: EmbedderConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Qdrant: QdrantConfig{
			Port:       6334,
			Collection: "lore_facts",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Pipeline: PipelineConfig{
			MaxConcurrency: 4,
		},
		Context:   DefaultContext(),
		Populator: DefaultPopulator(),
	}
}

// Load loads configuration from the .lore directory in the given path, then
// applies environment overrides.
func Load(basePath string) (*Config, error) {
	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'lore init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DatabasePath(basePath)
	}

	return cfg, nil
}

// applyEnvOverrides applies LORE_<SECTION>_<KEY> environment variables, then
// falls back to the provider keys for unset API keys. Tags carry the full
// variable name and no prefix is passed, so envconfig never consults a bare
// name such as PATH or HOST.
func (c *Config) applyEnvOverrides() error {
	sections := []struct {
		name string
		spec any
	}{
		{"llm", &c.LLM},
		{"embedder", &c.Embedder},
		{"qdrant", &c.Qdrant},
		{"sqlite", &c.SQLite},
		{"log", &c.Log},
		{"pipeline", &c.Pipeline},
		{"context", &c.Context},
		{"populator", &c.Populator},
	}
	for _, section := range sections {
		if err := envconfig.Process("", section.spec); err != nil {
			return fmt.Errorf("reading %s environment: %w", section.name, err)
		}
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
		if c.Embedder.APIKey == "" {
			c.Embedder.APIKey = key
		}
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		if c.Qdrant.APIKey == "" {
			c.Qdrant.APIKey = key
		}
	}
	return nil
}

// ConfigDir returns the path to the .lore config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// DatabasePath returns the default SQLite path for basePath.
func DatabasePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultDatabaseFile)
}

// Exists checks if a lore config exists in the given path.
func Exists(basePath string) bool {
	_, err := os.Stat(ConfigFilePath(basePath))
	return err == nil
}
