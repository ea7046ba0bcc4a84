// Package chunkstore provides keyed access to the source text chunks the
// graph nodes were extracted from. The retrieval engine uses it to attach
// supporting passages to anchored and expanded nodes; it never writes chunks
// during a retrieval call, only the ingestion pipeline does.
package chunkstore

import (
	"context"
	"errors"

	"github.com/soundprediction/cerca/pkg/types"
)

// ErrChunkNotFound is returned by Get when no chunk exists for the given id.
var ErrChunkNotFound = errors.New("chunk not found")

// Store is the text chunk storage contract.
type Store interface {
	// Get returns the chunk with the given id, or ErrChunkNotFound.
	Get(ctx context.Context, id string) (*types.TextChunk, error)

	// GetMany returns the chunks for the given ids, preserving input
	// order. Missing ids are skipped, not errors; a caller that needs
	// strict presence uses Get.
	GetMany(ctx context.Context, ids []string) ([]*types.TextChunk, error)

	// Put stores chunks, overwriting existing ids.
	Put(ctx context.Context, chunks ...*types.TextChunk) error

	// Close releases the underlying storage.
	Close() error
}
