// Package store defines the capability interface the retrieval engine needs
// from the hybrid store: keyword matching, vector nearest-neighbor search
// over nodes and chunks, and bounded neighbor traversal. The graph and the
// vector index are read-only from this engine's perspective.
package store

import (
	"context"
	"time"

	"github.com/soundprediction/cerca/pkg/types"
)

// NodeSimilarity pairs a node with its similarity to the query embedding.
type NodeSimilarity struct {
	Node       *types.GraphNode
	Similarity float64
}

// ChunkSimilarity pairs a text chunk with its similarity to the query
// embedding.
type ChunkSimilarity struct {
	Chunk      *types.TextChunk
	Similarity float64
}

// NeighborEntry is one outgoing edge plus the node it leads to.
type NeighborEntry struct {
	Edge *types.GraphEdge
	Node *types.GraphNode
}

// Store is the storage collaborator's contract. Implementations must
// distinguish transient failures (wrap in types.TransientStoreError) from
// fatal ones; the engine degrades on the former and propagates the latter.
type Store interface {
	// KeywordMatch finds nodes whose name or description contains any of
	// the given terms. Matching is case-insensitive substring matching.
	KeywordMatch(ctx context.Context, terms []string, limit int) ([]*types.GraphNode, error)

	// VectorSearch returns up to k nodes whose embedding similarity to
	// the query embedding is at least minSimilarity, most similar first.
	VectorSearch(ctx context.Context, embedding []float32, k int, minSimilarity float64) ([]NodeSimilarity, error)

	// ChunkVectorSearch is VectorSearch over the chunk modality of the
	// vector index.
	ChunkVectorSearch(ctx context.Context, embedding []float32, k int, minSimilarity float64) ([]ChunkSimilarity, error)

	// Neighbors returns outgoing edges (and their target nodes) of a
	// node, optionally restricted to the given relation types, up to
	// limit entries.
	Neighbors(ctx context.Context, nodeID string, relationTypes []types.RelationType, limit int) ([]NeighborEntry, error)

	// Close releases all resources held by the adapter.
	Close(ctx context.Context) error
}

// RetryBackoff is the pause before the single retry of a transient store
// failure.
var RetryBackoff = 100 * time.Millisecond

// WithRetry runs fn and, if it fails with a transient store error, retries
// exactly once after a short backoff. Any second failure (or a non-transient
// first failure) is returned as-is. The context cancels the backoff.
func WithRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !types.IsTransientStore(err) {
		return err
	}
	select {
	case <-time.After(RetryBackoff):
	case <-ctx.Done():
		return err
	}
	return fn()
}
