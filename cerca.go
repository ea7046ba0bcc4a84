package cerca

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soundprediction/cerca/pkg/alert"
	"github.com/soundprediction/cerca/pkg/chunkstore"
	"github.com/soundprediction/cerca/pkg/config"
	"github.com/soundprediction/cerca/pkg/embedder"
	"github.com/soundprediction/cerca/pkg/logger"
	"github.com/soundprediction/cerca/pkg/retrieval"
	"github.com/soundprediction/cerca/pkg/scorer"
	"github.com/soundprediction/cerca/pkg/store"
	"github.com/soundprediction/cerca/pkg/telemetry"
	"github.com/soundprediction/cerca/pkg/types"
)

// ClientConfig holds the collaborators and tuning for a Client. Store is
// required; a nil Embedder disables the vector path, a nil Scorer disables
// reranking, and a nil ChunkStore disables linked-chunk attachment, each
// with the corresponding degradation instead of a construction error.
type ClientConfig struct {
	Store      store.Store
	ChunkStore chunkstore.Store
	Embedder   embedder.Client
	Scorer     scorer.Client
	Intents    types.IntentRelationMap

	// Options tunes the pipeline. The zero value means DefaultOptions.
	Options *retrieval.Options

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Client is the main implementation of the Cerca interface.
type Client struct {
	engine  *retrieval.Engine
	chunks  chunkstore.Store
	intents types.IntentRelationMap
	logger  *slog.Logger
}

// NewClient wires a retrieval client from explicit collaborators.
func NewClient(cfg ClientConfig) (*Client, error) {
	opts := retrieval.DefaultOptions()
	if cfg.Options != nil {
		opts = *cfg.Options
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	engine, err := retrieval.NewEngine(retrieval.Dependencies{
		Store:      cfg.Store,
		ChunkStore: cfg.ChunkStore,
		Embedder:   cfg.Embedder,
		Scorer:     cfg.Scorer,
		Intents:    cfg.Intents,
		Logger:     log,
	}, opts)
	if err != nil {
		return nil, err
	}

	return &Client{
		engine:  engine,
		chunks:  cfg.ChunkStore,
		intents: cfg.Intents,
		logger:  log,
	}, nil
}

// New builds a Client from file/env configuration: the Neo4j store, the
// Badger chunk store, the configured embedding and scoring providers (the
// scorer wrapped in a circuit breaker), the intent map, and the Parquet
// telemetry handler chained in front of the base log handler.
func New(cfg *config.Config) (*Client, error) {
	handler := logger.NewHandler(cfg.Log.Level, cfg.Log.Format)
	if cfg.Telemetry.ParquetPath != "" {
		ph, err := telemetry.NewParquetHandler(handler, cfg.Telemetry.ParquetPath)
		if err != nil {
			return nil, err
		}
		handler = ph
	}
	log := slog.New(handler)

	st, err := store.NewNeo4jStore(store.Neo4jConfig{
		URI:      cfg.Database.URI,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
	})
	if err != nil {
		return nil, err
	}

	chunks, err := chunkstore.NewBadgerStore(chunkstore.BadgerConfig{
		Path:     cfg.ChunkStore.Path,
		InMemory: cfg.ChunkStore.InMemory,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	sc := newScorer(cfg, emb)
	if sc != nil && cfg.CircuitBreaker.Enabled {
		var alerter alert.Alerter = &alert.NoOpAlerter{}
		if cfg.Alert.Enabled {
			alerter = alert.NewEmailAlerter(cfg.Alert)
		}
		sc = scorer.NewCircuitBreakerClient(sc, cfg.CircuitBreaker, alerter, "relevance-scorer")
	}

	var intents types.IntentRelationMap
	if cfg.IntentsPath != "" {
		intents, err = config.LoadIntentRelationMap(cfg.IntentsPath)
		if err != nil {
			return nil, err
		}
	}

	opts := retrieval.OptionsFromConfig(cfg.Retrieval)
	return NewClient(ClientConfig{
		Store:      st,
		ChunkStore: chunks,
		Embedder:   emb,
		Scorer:     sc,
		Intents:    intents,
		Options:    &opts,
		Logger:     log,
	})
}

// newEmbedder builds the configured embedding client. An empty provider
// returns nil and disables the vector path; a configured provider that fails
// to construct is an error, not a silent downgrade.
func newEmbedder(cfg *config.Config) (embedder.Client, error) {
	embCfg := embedder.Config{
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
	}
	switch cfg.Embedding.Provider {
	case "embedeverything":
		client, err := embedder.NewEmbedEverythingClient(embCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		return client, nil
	case "openai":
		return embedder.NewOpenAIEmbedder(cfg.Embedding.APIKey, embCfg), nil
	}
	return nil, nil
}

func newScorer(cfg *config.Config, emb embedder.Client) scorer.Client {
	switch cfg.Scoring.Provider {
	case "openai":
		return scorer.NewOpenAIScorer(cfg.Scoring.APIKey, scorer.Config{
			Model:   cfg.Scoring.Model,
			BaseURL: cfg.Scoring.BaseURL,
		})
	case "embedding":
		if emb == nil {
			return nil
		}
		return scorer.NewEmbeddingScorer(emb)
	}
	return nil
}

// GetChunk retrieves a single source text chunk by id.
func (c *Client) GetChunk(ctx context.Context, chunkID string) (*types.TextChunk, error) {
	if c.chunks == nil {
		return nil, chunkstore.ErrChunkNotFound
	}
	return c.chunks.Get(ctx, chunkID)
}

// Intents returns the configured intent labels.
func (c *Client) Intents() []string {
	return c.intents.Intents()
}

// Close closes all connections and cleans up resources.
func (c *Client) Close(ctx context.Context) error {
	return c.engine.Close(ctx)
}
