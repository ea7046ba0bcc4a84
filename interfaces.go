package cerca

import (
	"context"

	"github.com/soundprediction/cerca/pkg/types"
)

// This file defines focused interfaces that follow the Interface Segregation
// Principle. The main Cerca interface is composed from these smaller
// interfaces; consumers should depend on the smallest one that meets their
// needs.

// Retriever produces context bundles for parsed queries. This is the
// interface the answer-synthesis collaborator consumes.
type Retriever interface {
	// Retrieve produces a ranked, deduplicated context bundle for the
	// query. It returns an error only when every retrieval path failed;
	// partial failures surface as a degraded bundle.
	Retrieve(ctx context.Context, query types.Query) (*types.ContextBundle, error)
}

// ChunkReader provides direct access to source text chunks, bypassing the
// retrieval pipeline.
type ChunkReader interface {
	// GetChunk retrieves a single source text chunk by id.
	GetChunk(ctx context.Context, chunkID string) (*types.TextChunk, error)
}

// IntentInspector exposes the loaded intent configuration so serving layers
// can validate the input contract.
type IntentInspector interface {
	// Intents returns the configured intent labels.
	Intents() []string
}

// Cerca is the complete client contract, composed from the focused
// interfaces above.
type Cerca interface {
	Retriever
	ChunkReader
	IntentInspector

	// Close closes all connections and cleans up resources.
	Close(ctx context.Context) error
}

// Compile-time check that Client implements the composed interface.
var _ Cerca = (*Client)(nil)
