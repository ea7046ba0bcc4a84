package embedder

import "context"

// Default settings for OpenAI-compatible embedding APIs.
const (
	DefaultModel     = "text-embedding-3-small"
	DefaultBatchSize = 100
)

// Config holds embedding client settings.
type Config struct {
	// Model is the embedding model name. Defaults to DefaultModel.
	Model string `json:"model" mapstructure:"model"`

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// Dimensions is the embedding vector size. When zero, the model's
	// native dimensionality is used.
	Dimensions int `json:"dimensions" mapstructure:"dimensions"`

	// BatchSize is the maximum number of texts per API request.
	// Defaults to DefaultBatchSize.
	BatchSize int `json:"batch_size" mapstructure:"batch_size"`
}

// Client is the text embedding contract.
type Client interface {
	// Embed generates embeddings for the given texts, one vector per
	// input in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Close cleans up any resources.
	Close() error
}
