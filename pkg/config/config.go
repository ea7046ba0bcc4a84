// Package config loads engine configuration from file and environment
// variables via viper, and the intent-to-relation map from YAML.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/soundprediction/cerca/pkg/types"
)

// Config holds all configuration for the retrieval engine.
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Database configuration (graph + vector store)
	Database DatabaseConfig `mapstructure:"database"`

	// ChunkStore configuration
	ChunkStore ChunkStoreConfig `mapstructure:"chunk_store"`

	// Embedding configuration
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Scoring configuration (relevance reranking)
	Scoring ScoringConfig `mapstructure:"scoring"`

	// Retrieval tuning knobs
	Retrieval RetrievalConfig `mapstructure:"retrieval"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Alert configuration
	Alert AlertConfig `mapstructure:"alert"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// IntentsPath is the YAML file mapping intents to preferred relation
	// types.
	IntentsPath string `mapstructure:"intents_path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds graph database configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // neo4j
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// ChunkStoreConfig holds text chunk storage configuration
type ChunkStoreConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

// EmbeddingConfig holds embedding configuration
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // openai, embedeverything
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ScoringConfig holds relevance scoring configuration
type ScoringConfig struct {
	Provider string `mapstructure:"provider"` // openai, embedding
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// RetrievalConfig holds the engine tuning knobs
type RetrievalConfig struct {
	MaxAnchors      int     `mapstructure:"max_anchors"`
	VectorK         int     `mapstructure:"vector_k"`
	SimilarityFloor float64 `mapstructure:"similarity_floor"`
	MaxHops         int     `mapstructure:"max_hops"`
	PreferredFanout int     `mapstructure:"preferred_fanout"`
	OtherFanout     int     `mapstructure:"other_fanout"`
	MaxPoolSize     int     `mapstructure:"max_pool_size"`
	MaxConcurrency  int     `mapstructure:"max_concurrency"`
	HopPenalty      float64 `mapstructure:"hop_penalty"`
	MaxItems        int     `mapstructure:"max_items"`
	MaxChars        int     `mapstructure:"max_chars"`
	MaxLinkedChunks int     `mapstructure:"max_linked_chunks"`
	RequestTimeout  int     `mapstructure:"request_timeout"` // in seconds
	CallTimeout     int     `mapstructure:"call_timeout"`    // in seconds
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// AlertConfig holds configuration for alerting
type AlertConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Database defaults
	viper.SetDefault("database.driver", "neo4j")
	viper.SetDefault("database.uri", "bolt://localhost:7687")
	viper.SetDefault("database.username", "neo4j")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.database", "neo4j")

	// Chunk store defaults
	viper.SetDefault("chunk_store.path", "./chunks_db")
	viper.SetDefault("chunk_store.in_memory", false)

	// Embedding defaults
	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")

	// Scoring defaults
	viper.SetDefault("scoring.provider", "openai")
	viper.SetDefault("scoring.model", "gpt-4o-mini")

	// Retrieval defaults
	viper.SetDefault("retrieval.max_anchors", 10)
	viper.SetDefault("retrieval.vector_k", 20)
	viper.SetDefault("retrieval.similarity_floor", 0.7)
	viper.SetDefault("retrieval.max_hops", 2)
	viper.SetDefault("retrieval.preferred_fanout", 5)
	viper.SetDefault("retrieval.other_fanout", 2)
	viper.SetDefault("retrieval.max_pool_size", 200)
	viper.SetDefault("retrieval.max_concurrency", 5)
	viper.SetDefault("retrieval.hop_penalty", 0.1)
	viper.SetDefault("retrieval.max_items", 20)
	viper.SetDefault("retrieval.max_chars", 8000)
	viper.SetDefault("retrieval.max_linked_chunks", 3)
	viper.SetDefault("retrieval.request_timeout", 30)
	viper.SetDefault("retrieval.call_timeout", 10)

	// Circuit breaker defaults
	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	// Intents map default
	viper.SetDefault("intents_path", "config/intents.yaml")

	// Telemetry defaults
	home, err := os.UserHomeDir()
	if err == nil {
		defaultPath := fmt.Sprintf("%s/.cerca/telemetry", home)
		viper.SetDefault("telemetry.parquet_path", defaultPath)
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if config.Embedding.APIKey == "" {
			config.Embedding.APIKey = apiKey
		}
		if config.Scoring.APIKey == "" {
			config.Scoring.APIKey = apiKey
		}
	}

	// Database credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		config.Database.Database = db
	}

	// Chunk store path
	if path := os.Getenv("CHUNK_STORE_PATH"); path != "" {
		config.ChunkStore.Path = path
	}

	// Intents map
	if path := os.Getenv("INTENTS_PATH"); path != "" {
		config.IntentsPath = path
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}

// LoadIntentRelationMap reads the YAML intent map and validates it.
func LoadIntentRelationMap(path string) (types.IntentRelationMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intents file: %w", err)
	}

	raw := make(map[string][]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse intents file: %w", err)
	}

	m := make(types.IntentRelationMap, len(raw))
	for intent, relations := range raw {
		rels := make([]types.RelationType, len(relations))
		for i, rel := range relations {
			rels[i] = types.RelationType(rel)
		}
		m[intent] = rels
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
