// Package config loads and persists the recall configuration file
// (~/.recall/config.yaml), merged with RECALL_-prefixed environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/recall/internal/embedding"
	"github.com/normanking/recall/internal/memory"
)

// Config holds all application configuration. It is loaded from
// ~/.recall/config.yaml and can be overridden by environment variables.
type Config struct {
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	Context   ContextConfig   `mapstructure:"context" yaml:"context"`
	Friction  FrictionConfig  `mapstructure:"friction" yaml:"friction"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// StoreConfig locates the per-project memory database.
type StoreConfig struct {
	// DBPath is the SQLite database path. The default keeps one store per
	// project under the project directory; an absolute path pins it.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	// Backend is "hash", "ollama", or "openai".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Dimension is the stored vector size. Changing it on an existing
	// store orphans old embeddings.
	Dimension int `mapstructure:"dimension" yaml:"dimension"`
	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`
	// OllamaModel is the local embedding model name.
	OllamaModel string `mapstructure:"ollama_model" yaml:"ollama_model"`
	// OpenAIAPIKey authenticates the OpenAI backend; falls back to
	// OPENAI_API_KEY.
	OpenAIAPIKey string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	// OpenAIModel is the OpenAI embedding model.
	OpenAIModel string `mapstructure:"openai_model" yaml:"openai_model"`
	// CacheMaxSize caps the in-process embedding cache (negative disables).
	CacheMaxSize int `mapstructure:"cache_max_size" yaml:"cache_max_size"`
}

// ToEmbedderConfig converts EmbeddingConfig for the embedding package.
func (c EmbeddingConfig) ToEmbedderConfig() embedding.Config {
	return embedding.Config{
		Backend:      c.Backend,
		Dimension:    c.Dimension,
		OllamaHost:   c.OllamaHost,
		OllamaModel:  c.OllamaModel,
		OpenAIAPIKey: c.OpenAIAPIKey,
		OpenAIModel:  c.OpenAIModel,
		CacheMaxSize: c.CacheMaxSize,
	}
}

// RetrievalConfig tunes the similarity thresholds.
type RetrievalConfig struct {
	// MinSimilarity gates general retrieval.
	MinSimilarity float64 `mapstructure:"min_similarity" yaml:"min_similarity"`
	// DecisionMinSimilarity gates decisions injected into context.
	DecisionMinSimilarity float64 `mapstructure:"decision_min_similarity" yaml:"decision_min_similarity"`
	// HeuristicMinSimilarity gates heuristics injected into context.
	HeuristicMinSimilarity float64 `mapstructure:"heuristic_min_similarity" yaml:"heuristic_min_similarity"`
	// SearchMinSimilarity gates explicit searches.
	SearchMinSimilarity float64 `mapstructure:"search_min_similarity" yaml:"search_min_similarity"`
	// FrictionMatchThreshold gates friction-by-description matching.
	FrictionMatchThreshold float64 `mapstructure:"friction_match_threshold" yaml:"friction_match_threshold"`
	// DefaultLimit is the result count when a caller passes none.
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
}

// ToRetrieverConfig converts RetrievalConfig for the memory package.
func (c RetrievalConfig) ToRetrieverConfig() memory.RetrieverConfig {
	return memory.RetrieverConfig{
		MinSimilarity:          c.MinSimilarity,
		DecisionMinSimilarity:  c.DecisionMinSimilarity,
		HeuristicMinSimilarity: c.HeuristicMinSimilarity,
		SearchMinSimilarity:    c.SearchMinSimilarity,
		FrictionMatchThreshold: c.FrictionMatchThreshold,
		DefaultLimit:           c.DefaultLimit,
	}
}

// ContextConfig carries the token sub-budgets for context assembly.
type ContextConfig struct {
	SystemTokens       int `mapstructure:"system_tokens" yaml:"system_tokens"`
	ConstraintTokens   int `mapstructure:"constraint_tokens" yaml:"constraint_tokens"`
	ConversationTokens int `mapstructure:"conversation_tokens" yaml:"conversation_tokens"`
	DecisionTokens     int `mapstructure:"decision_tokens" yaml:"decision_tokens"`
	HeuristicTokens    int `mapstructure:"heuristic_tokens" yaml:"heuristic_tokens"`
}

// ToTokenBudget converts ContextConfig for the memory package.
func (c ContextConfig) ToTokenBudget() memory.TokenBudget {
	return memory.TokenBudget{
		SystemTokens:       c.SystemTokens,
		ConstraintTokens:   c.ConstraintTokens,
		ConversationTokens: c.ConversationTokens,
		DecisionTokens:     c.DecisionTokens,
		HeuristicTokens:    c.HeuristicTokens,
	}
}

// FrictionConfig tunes the feedback decay batch.
type FrictionConfig struct {
	// HalfLifeDays is the exponential half-life used by `recall decay`.
	HalfLifeDays float64 `mapstructure:"half_life_days" yaml:"half_life_days"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `mapstructure:"level" yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			DBPath: ".recall/memory.db",
		},
		Embedding: EmbeddingConfig{
			Backend:     embedding.BackendHash,
			Dimension:   embedding.DefaultDimension,
			OllamaHost:  embedding.DefaultOllamaHost,
			OllamaModel: embedding.DefaultOllamaModel,
			OpenAIModel: embedding.DefaultOpenAIModel,
		},
		Retrieval: RetrievalConfig{
			MinSimilarity:          0.3,
			DecisionMinSimilarity:  0.4,
			HeuristicMinSimilarity: 0.35,
			SearchMinSimilarity:    0.2,
			FrictionMatchThreshold: 0.55,
			DefaultLimit:           5,
		},
		Context: ContextConfig{
			SystemTokens:       500,
			ConstraintTokens:   800,
			ConversationTokens: 3000,
			DecisionTokens:     1000,
			HeuristicTokens:    500,
		},
		Friction: FrictionConfig{
			HalfLifeDays: 14,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the default location (~/.recall/config.yaml)
// and merges with environment variables. If no config file exists it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".recall", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. A missing file is created with defaults; an
// unreadable or corrupt file degrades to the defaults so the tool never
// refuses to start over configuration.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: RECALL_EMBEDDING_BACKEND=openai
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config unreadable, using defaults")
		return Default(), nil
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config malformed, using defaults")
		return Default(), nil
	}

	cfg.Store.DBPath = expandPath(cfg.Store.DBPath)
	return cfg, nil
}

// Save writes the configuration to the default location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("get home directory: %w", err)
	}
	return c.SaveToPath(filepath.Join(homeDir, ".recall", "config.yaml"))
}

// SaveToPath writes the configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	switch c.Embedding.Backend {
	case embedding.BackendHash, embedding.BackendOllama, embedding.BackendOpenAI, "":
	default:
		return fmt.Errorf("invalid embedding backend %q, must be one of: hash, ollama, openai", c.Embedding.Backend)
	}

	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding dimension cannot be negative")
	}

	for name, v := range map[string]float64{
		"min_similarity":           c.Retrieval.MinSimilarity,
		"decision_min_similarity":  c.Retrieval.DecisionMinSimilarity,
		"heuristic_min_similarity": c.Retrieval.HeuristicMinSimilarity,
		"search_min_similarity":    c.Retrieval.SearchMinSimilarity,
		"friction_match_threshold": c.Retrieval.FrictionMatchThreshold,
	} {
		if v < -1 || v > 1 {
			return fmt.Errorf("retrieval.%s must be within [-1, 1], got %v", name, v)
		}
	}

	if c.Friction.HalfLifeDays <= 0 {
		return fmt.Errorf("friction.half_life_days must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile marshals via yaml.v3 directly so the yaml struct tags
// drive serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
