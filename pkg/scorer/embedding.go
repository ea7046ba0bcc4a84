package scorer

import (
	"context"
	"fmt"
	"math"

	"github.com/soundprediction/cerca/pkg/embedder"
)

// EmbeddingScorer scores relevance as cosine similarity between query and
// passage embeddings, mapped into [0,1]. Not a true cross-encoder, but a
// cheap local fallback when no LLM is available.
type EmbeddingScorer struct {
	embedder embedder.Client
}

var _ Client = (*EmbeddingScorer)(nil)

// NewEmbeddingScorer creates an embedding-similarity scorer.
func NewEmbeddingScorer(embedderClient embedder.Client) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedderClient}
}

// ScoreRelevance maps cosine similarity from [-1,1] into [0,1].
func (s *EmbeddingScorer) ScoreRelevance(ctx context.Context, query, passage string) (float64, error) {
	if s.embedder == nil {
		return 0, fmt.Errorf("embedder client is nil")
	}

	queryEmbedding, err := s.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to embed query: %w", err)
	}
	passageEmbedding, err := s.embedder.EmbedSingle(ctx, passage)
	if err != nil {
		return 0, fmt.Errorf("failed to embed passage: %w", err)
	}

	similarity := cosineSimilarity(queryEmbedding, passageEmbedding)
	return clampScore((similarity + 1) / 2), nil
}

// Close cleans up the underlying embedder.
func (s *EmbeddingScorer) Close() error {
	if s.embedder != nil {
		return s.embedder.Close()
	}
	return nil
}

// cosineSimilarity calculates the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
