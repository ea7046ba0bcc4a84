package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/cerca/pkg/chunkstore"
	"github.com/soundprediction/cerca/pkg/embedder"
	"github.com/soundprediction/cerca/pkg/metrics"
	"github.com/soundprediction/cerca/pkg/scorer"
	"github.com/soundprediction/cerca/pkg/store"
	"github.com/soundprediction/cerca/pkg/types"
)

// Dependencies are the collaborators a retrieval engine needs. Store is
// required; the others degrade the pipeline when absent rather than failing
// construction.
type Dependencies struct {
	Store      store.Store
	ChunkStore chunkstore.Store
	Embedder   embedder.Client
	Scorer     scorer.Client
	Intents    types.IntentRelationMap
	Logger     *slog.Logger
}

// Engine runs the full retrieval pipeline: anchor resolution, graph
// expansion, linked-chunk attachment, reranking, and bundle assembly.
type Engine struct {
	store    store.Store
	chunks   chunkstore.Store
	resolver *AnchorResolver
	expander *GraphExpander
	reranker *CandidateReranker
	opts     Options
	logger   *slog.Logger
}

// NewEngine validates the configuration and wires the pipeline.
func NewEngine(deps Dependencies, opts Options) (*Engine, error) {
	if deps.Store == nil {
		return nil, &types.ConfigurationError{Field: "store", Reason: "store is required"}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Intents != nil {
		if err := deps.Intents.Validate(); err != nil {
			return nil, err
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:    deps.Store,
		chunks:   deps.ChunkStore,
		resolver: NewAnchorResolver(deps.Store, deps.Embedder, opts, logger),
		expander: NewGraphExpander(deps.Store, deps.Intents, opts, logger),
		reranker: NewCandidateReranker(deps.Scorer, opts, logger),
		opts:     opts,
		logger:   logger,
	}, nil
}

// Retrieve produces a context bundle for the parsed query. It returns an
// error only when every retrieval path failed; partial failures surface as
// a degraded bundle.
func (e *Engine) Retrieve(ctx context.Context, query types.Query) (*types.ContextBundle, error) {
	started := time.Now()

	if strings.TrimSpace(query.Text) == "" {
		return &types.ContextBundle{}, nil
	}

	intent := query.Intent
	if intent == "" {
		intent = types.IntentUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	// Annotate the context so telemetry can attribute error records to
	// this request.
	ctx = context.WithValue(ctx, types.ContextKeyRequestID, uuid.NewString())
	ctx = context.WithValue(ctx, types.ContextKeyIntent, intent)

	anchorSet := e.resolver.Resolve(ctx, query)
	reasons := append([]string{}, anchorSet.Reasons...)

	var pool []types.Candidate
	if len(anchorSet.Candidates) == 0 {
		fallback, err := e.chunkFallback(ctx, query.Text)
		if err != nil {
			if anchorSet.KeywordFailed && anchorSet.VectorFailed {
				metrics.ObserveRetrieval(intent, "error", 0, nil, time.Since(started))
				return nil, fmt.Errorf("all retrieval paths failed: %w", err)
			}
			e.logger.WarnContext(ctx, "chunk fallback failed", "error", err)
			reasons = append(reasons, types.ReasonVectorIndexUnavailable)
		}
		pool = fallback
	} else {
		expansion, expandReasons := e.expander.Expand(ctx, anchorSet.Candidates, intent)
		reasons = append(reasons, expandReasons...)

		pool = make([]types.Candidate, 0, len(anchorSet.Candidates)+len(expansion))
		pool = append(pool, anchorSet.Candidates...)
		pool = append(pool, expansion...)

		linked, linkReasons := e.attachLinkedChunks(ctx, pool)
		reasons = append(reasons, linkReasons...)
		pool = append(pool, linked...)
	}

	var rerankReasons []string
	pool, rerankReasons = e.reranker.Rerank(ctx, query.Text, pool)
	reasons = append(reasons, rerankReasons...)

	bundle := &types.ContextBundle{
		Items:           AssembleBundle(pool, e.opts),
		DegradedReasons: types.NormalizeReasons(reasons),
	}
	bundle.Degraded = len(bundle.DegradedReasons) > 0

	outcome := "ok"
	switch {
	case bundle.Degraded:
		outcome = "degraded"
	case bundle.Empty():
		outcome = "empty"
	}
	metrics.ObserveRetrieval(intent, outcome, len(bundle.Items), bundle.DegradedReasons, time.Since(started))

	e.logger.InfoContext(ctx, "retrieval complete",
		"intent", intent,
		"anchors", len(anchorSet.Candidates),
		"pool", len(pool),
		"items", len(bundle.Items),
		"degraded", bundle.Degraded,
		"duration", time.Since(started))

	return bundle, nil
}

// Close releases the engine's storage collaborators.
func (e *Engine) Close(ctx context.Context) error {
	var firstErr error
	if e.chunks != nil {
		if err := e.chunks.Close(); err != nil {
			firstErr = err
		}
	}
	if err := e.store.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// chunkFallback searches the chunk modality of the vector index when no
// graph anchors matched.
func (e *Engine) chunkFallback(ctx context.Context, text string) ([]types.Candidate, error) {
	if e.resolver.embedder == nil {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	embedding, err := e.resolver.embedder.EmbedSingle(callCtx, text)
	if err != nil {
		return nil, err
	}

	var hits []store.ChunkSimilarity
	err = store.WithRetry(callCtx, func() error {
		var innerErr error
		hits, innerErr = e.store.ChunkVectorSearch(callCtx, embedding, e.opts.VectorK, e.opts.SimilarityFloor)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]types.Candidate, 0, len(hits))
	for _, hit := range hits {
		if hit.Chunk == nil || hit.Chunk.ID == "" {
			continue
		}
		candidates = append(candidates, types.Candidate{
			Chunk:       hit.Chunk,
			Path:        types.PathVector,
			Hop:         0,
			PrelimScore: hit.Similarity,
		})
	}
	return candidates, nil
}

// attachLinkedChunks loads the source chunks of the collected nodes, up to
// MaxLinkedChunks per node, within the remaining pool budget. Chunk
// candidates inherit the hop, path, and score of the node that links them.
func (e *Engine) attachLinkedChunks(ctx context.Context, pool []types.Candidate) ([]types.Candidate, []string) {
	if e.chunks == nil {
		return nil, nil
	}

	type chunkOrigin struct {
		parent *types.Candidate
	}
	wantIDs := make([]string, 0)
	origins := make(map[string]chunkOrigin)

	budget := e.opts.MaxPoolSize - len(pool)
	for i := range pool {
		node := pool[i].Node
		if node == nil {
			continue
		}
		attached := 0
		for _, chunkID := range node.ChunkIDs {
			if attached == e.opts.MaxLinkedChunks || len(wantIDs) == budget {
				break
			}
			if chunkID == "" {
				continue
			}
			if _, ok := origins[chunkID]; ok {
				continue
			}
			origins[chunkID] = chunkOrigin{parent: &pool[i]}
			wantIDs = append(wantIDs, chunkID)
			attached++
		}
	}
	if len(wantIDs) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	chunks, err := e.chunks.GetMany(callCtx, wantIDs)
	if err != nil {
		e.logger.WarnContext(ctx, "linked chunk load failed", "error", err)
		return nil, []string{types.ReasonChunkStoreUnavailable}
	}

	candidates := make([]types.Candidate, 0, len(chunks))
	for _, chunk := range chunks {
		origin, ok := origins[chunk.ID]
		if !ok {
			continue
		}
		parent := origin.parent
		candidates = append(candidates, types.Candidate{
			Chunk:       chunk,
			Path:        parent.Path,
			Hop:         parent.Hop,
			Via:         parent.Via,
			PrelimScore: parent.PrelimScore,
		})
	}
	return candidates, nil
}
