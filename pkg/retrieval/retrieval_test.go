package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/cerca/pkg/store"
	"github.com/soundprediction/cerca/pkg/types"
)

func init() {
	// Keep transient-error retries fast in tests.
	store.RetryBackoff = time.Millisecond
}

// fakeStore implements store.Store over in-memory maps.
type fakeStore struct {
	nodes     map[string]*types.GraphNode
	neighbors map[string][]store.NeighborEntry

	vectorHits []store.NodeSimilarity
	chunkHits  []store.ChunkSimilarity

	keywordErr  error
	vectorErr   error
	chunkErr    error
	neighborErr map[string]error

	keywordCalls int32
	vectorCalls  int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes:       make(map[string]*types.GraphNode),
		neighbors:   make(map[string][]store.NeighborEntry),
		neighborErr: make(map[string]error),
	}
}

func (s *fakeStore) addNode(node *types.GraphNode) {
	s.nodes[node.ID] = node
}

func (s *fakeStore) addEdge(edge *types.GraphEdge, target *types.GraphNode) {
	s.nodes[target.ID] = target
	s.neighbors[edge.SourceID] = append(s.neighbors[edge.SourceID], store.NeighborEntry{
		Edge: edge,
		Node: target,
	})
}

func (s *fakeStore) KeywordMatch(ctx context.Context, terms []string, limit int) ([]*types.GraphNode, error) {
	atomic.AddInt32(&s.keywordCalls, 1)
	if s.keywordErr != nil {
		return nil, s.keywordErr
	}
	var out []*types.GraphNode
	for _, node := range s.nodes {
		name := strings.ToLower(node.Name)
		desc := strings.ToLower(node.Description)
		for _, term := range terms {
			if strings.Contains(name, term) || (desc != "" && strings.Contains(desc, term)) {
				out = append(out, node)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) VectorSearch(ctx context.Context, embedding []float32, k int, minSimilarity float64) ([]store.NodeSimilarity, error) {
	atomic.AddInt32(&s.vectorCalls, 1)
	if s.vectorErr != nil {
		return nil, s.vectorErr
	}
	return s.vectorHits, nil
}

func (s *fakeStore) ChunkVectorSearch(ctx context.Context, embedding []float32, k int, minSimilarity float64) ([]store.ChunkSimilarity, error) {
	if s.chunkErr != nil {
		return nil, s.chunkErr
	}
	return s.chunkHits, nil
}

func (s *fakeStore) Neighbors(ctx context.Context, nodeID string, relationTypes []types.RelationType, limit int) ([]store.NeighborEntry, error) {
	if err := s.neighborErr[nodeID]; err != nil {
		return nil, err
	}
	entries := s.neighbors[nodeID]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *fakeStore) Close(ctx context.Context) error { return nil }

// fakeEmbedder returns a fixed vector for any text.
type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *fakeEmbedder) Dimensions() int { return 3 }
func (e *fakeEmbedder) Close() error    { return nil }

// fakeScorer scores via a configurable function.
type fakeScorer struct {
	scoreFn func(query, passage string) (float64, error)
}

func (s *fakeScorer) ScoreRelevance(ctx context.Context, query, passage string) (float64, error) {
	if s.scoreFn == nil {
		return 0.8, nil
	}
	return s.scoreFn(query, passage)
}

func (s *fakeScorer) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testOptions() Options {
	opts := DefaultOptions()
	opts.RequestTimeout = 5 * time.Second
	opts.CallTimeout = time.Second
	return opts
}

func testIntents() types.IntentRelationMap {
	return types.IntentRelationMap{
		"find_procedure": {"HA_PASSO_SUCCESSIVO", "RICHIEDE"},
	}
}

// --- AnchorResolver ---

func TestAnchorResolverKeywordScoring(t *testing.T) {
	st := newFakeStore()
	st.addNode(&types.GraphNode{ID: "n1", Name: "commissione di gara"})
	st.addNode(&types.GraphNode{ID: "n2", Name: "Creazione Commissione di Gara"})
	st.addNode(&types.GraphNode{ID: "n3", Name: "Offerta", Description: "Valutata dalla commissione di gara"})

	resolver := NewAnchorResolver(st, nil, testOptions(), testLogger())
	result := resolver.Resolve(context.Background(), types.Query{
		Text:           "come creare una commissione di gara",
		EntityMentions: []string{"commissione di gara"},
	})

	require.Len(t, result.Candidates, 3)
	assert.Empty(t, result.Reasons)

	// Exact name match outranks name substring, which outranks description.
	assert.Equal(t, "n1", result.Candidates[0].Ref())
	assert.Equal(t, 2.0, result.Candidates[0].PrelimScore)
	assert.Equal(t, "n2", result.Candidates[1].Ref())
	assert.Equal(t, 1.0, result.Candidates[1].PrelimScore)
	assert.Equal(t, "n3", result.Candidates[2].Ref())
	assert.Equal(t, 0.5, result.Candidates[2].PrelimScore)

	for _, cand := range result.Candidates {
		assert.Equal(t, types.PathKeyword, cand.Path)
		assert.Equal(t, 0, cand.Hop)
	}
}

func TestAnchorResolverBothPathsBoost(t *testing.T) {
	st := newFakeStore()
	keywordNode := &types.GraphNode{ID: "n1", Name: "registrazione utente"}
	st.addNode(keywordNode)
	st.addNode(&types.GraphNode{ID: "n2", Name: "altro"})
	st.vectorHits = []store.NodeSimilarity{
		{Node: keywordNode, Similarity: 0.9},
		{Node: &types.GraphNode{ID: "n9", Name: "solo vettore"}, Similarity: 0.95},
	}

	resolver := NewAnchorResolver(st, &fakeEmbedder{}, testOptions(), testLogger())
	result := resolver.Resolve(context.Background(), types.Query{
		Text:           "come registrarsi",
		EntityMentions: []string{"registrazione utente"},
	})

	require.Len(t, result.Candidates, 2)

	// Dual confirmation sums the two path scores and wins.
	assert.Equal(t, "n1", result.Candidates[0].Ref())
	assert.Equal(t, types.PathBoth, result.Candidates[0].Path)
	assert.InDelta(t, 2.9, result.Candidates[0].PrelimScore, 1e-9)

	assert.Equal(t, "n9", result.Candidates[1].Ref())
	assert.Equal(t, types.PathVector, result.Candidates[1].Path)
}

func TestAnchorResolverVectorFailureDegrades(t *testing.T) {
	st := newFakeStore()
	st.addNode(&types.GraphNode{ID: "n1", Name: "commissione di gara"})
	st.vectorErr = &types.TransientStoreError{Op: "vector_search", Err: fmt.Errorf("connection reset")}

	resolver := NewAnchorResolver(st, &fakeEmbedder{}, testOptions(), testLogger())
	result := resolver.Resolve(context.Background(), types.Query{
		Text:           "commissione",
		EntityMentions: []string{"commissione di gara"},
	})

	assert.True(t, result.VectorFailed)
	assert.False(t, result.KeywordFailed)
	assert.Contains(t, result.Reasons, types.ReasonVectorIndexUnavailable)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "n1", result.Candidates[0].Ref())

	// Transient failures are retried exactly once.
	assert.Equal(t, int32(2), st.vectorCalls)
}

func TestAnchorResolverEmptyIsNotDegraded(t *testing.T) {
	st := newFakeStore()
	resolver := NewAnchorResolver(st, &fakeEmbedder{}, testOptions(), testLogger())

	result := resolver.Resolve(context.Background(), types.Query{
		Text:           "argomento sconosciuto",
		EntityMentions: []string{"non esiste"},
	})

	assert.Empty(t, result.Candidates)
	assert.Empty(t, result.Reasons)
	assert.False(t, result.KeywordFailed)
	assert.False(t, result.VectorFailed)
}

func TestAnchorResolverTruncatesToMaxAnchors(t *testing.T) {
	st := newFakeStore()
	for i := 0; i < 30; i++ {
		st.addNode(&types.GraphNode{ID: fmt.Sprintf("n%02d", i), Name: fmt.Sprintf("procedura %02d", i)})
	}

	opts := testOptions()
	opts.MaxAnchors = 5
	resolver := NewAnchorResolver(st, nil, opts, testLogger())

	result := resolver.Resolve(context.Background(), types.Query{
		Text:           "procedura",
		EntityMentions: []string{"procedura"},
	})
	assert.Len(t, result.Candidates, 5)
}

// --- GraphExpander ---

func procedureGraph() (*fakeStore, []types.Candidate) {
	st := newFakeStore()
	anchor := &types.GraphNode{ID: "creazione-commissione", Name: "Creazione Commissione di Gara"}
	st.addNode(anchor)

	st.addEdge(&types.GraphEdge{ID: "e1", Type: "HA_PASSO_SUCCESSIVO", SourceID: anchor.ID, TargetID: "nomina-membri", Weight: 0.9},
		&types.GraphNode{ID: "nomina-membri", Name: "Nomina Membri"})
	st.addEdge(&types.GraphEdge{ID: "e2", Type: "RICHIEDE", SourceID: anchor.ID, TargetID: "ruolo-rup", Weight: 0.8},
		&types.GraphNode{ID: "ruolo-rup", Name: "Ruolo RUP"})
	st.addEdge(&types.GraphEdge{ID: "e3", Type: "RIGUARDA", SourceID: anchor.ID, TargetID: "gara-generica", Weight: 0.95},
		&types.GraphNode{ID: "gara-generica", Name: "Gara"})
	st.addEdge(&types.GraphEdge{ID: "e4", Type: "RIGUARDA", SourceID: anchor.ID, TargetID: "altro-tema", Weight: 0.7},
		&types.GraphNode{ID: "altro-tema", Name: "Altro"})

	anchors := []types.Candidate{{
		Node:        anchor,
		Path:        types.PathKeyword,
		PrelimScore: 1.0,
	}}
	return st, anchors
}

func TestExpandPrefersIntentRelations(t *testing.T) {
	st, anchors := procedureGraph()

	opts := testOptions()
	opts.MaxHops = 1
	opts.PreferredFanout = 5
	opts.OtherFanout = 1
	expander := NewGraphExpander(st, testIntents(), opts, testLogger())

	collected, reasons := expander.Expand(context.Background(), anchors, "find_procedure")
	assert.Empty(t, reasons)

	var nodeRefs []string
	for _, cand := range collected {
		if cand.Node != nil {
			nodeRefs = append(nodeRefs, cand.Node.ID)
		}
	}

	// Both preferred targets expand; the two RIGUARDA edges compete for a
	// single non-preferred slot, won by the heavier one.
	assert.Contains(t, nodeRefs, "nomina-membri")
	assert.Contains(t, nodeRefs, "ruolo-rup")
	assert.Contains(t, nodeRefs, "gara-generica")
	assert.NotContains(t, nodeRefs, "altro-tema")

	for _, cand := range collected {
		assert.Equal(t, types.PathTraversal, cand.Path)
		assert.Equal(t, 1, cand.Hop)
		require.Len(t, cand.Via, 1)
	}
}

func TestExpandHonorsMaxHops(t *testing.T) {
	st := newFakeStore()
	a := &types.GraphNode{ID: "a", Name: "A"}
	st.addNode(a)
	st.addEdge(&types.GraphEdge{ID: "e1", Type: "RIGUARDA", SourceID: "a", TargetID: "b", Weight: 1},
		&types.GraphNode{ID: "b", Name: "B"})
	st.addEdge(&types.GraphEdge{ID: "e2", Type: "RIGUARDA", SourceID: "b", TargetID: "c", Weight: 1},
		&types.GraphNode{ID: "c", Name: "C"})
	st.addEdge(&types.GraphEdge{ID: "e3", Type: "RIGUARDA", SourceID: "c", TargetID: "d", Weight: 1},
		&types.GraphNode{ID: "d", Name: "D"})

	anchors := []types.Candidate{{Node: a, Path: types.PathKeyword, PrelimScore: 1}}

	opts := testOptions()
	opts.MaxHops = 2
	expander := NewGraphExpander(st, nil, opts, testLogger())

	collected, _ := expander.Expand(context.Background(), anchors, types.IntentUnknown)

	for _, cand := range collected {
		assert.LessOrEqual(t, cand.Hop, 2)
		if cand.Node != nil {
			assert.NotEqual(t, "d", cand.Node.ID)
		}
	}
}

func TestExpandHandlesCycles(t *testing.T) {
	st := newFakeStore()
	a := &types.GraphNode{ID: "a", Name: "A"}
	b := &types.GraphNode{ID: "b", Name: "B"}
	st.addNode(a)
	st.addEdge(&types.GraphEdge{ID: "e1", Type: "RIGUARDA", SourceID: "a", TargetID: "b", Weight: 1}, b)
	st.addEdge(&types.GraphEdge{ID: "e2", Type: "RIGUARDA", SourceID: "b", TargetID: "a", Weight: 1}, a)

	anchors := []types.Candidate{{Node: a, Path: types.PathKeyword, PrelimScore: 1}}
	expander := NewGraphExpander(st, nil, testOptions(), testLogger())

	collected, _ := expander.Expand(context.Background(), anchors, types.IntentUnknown)

	// Only the a->b step is new; the back-edge to the visited anchor is
	// skipped and expansion terminates.
	var nodeRefs []string
	for _, cand := range collected {
		if cand.Node != nil {
			nodeRefs = append(nodeRefs, cand.Node.ID)
		}
	}
	assert.Equal(t, []string{"b"}, nodeRefs)
}

func TestExpandRespectsPoolBudget(t *testing.T) {
	st := newFakeStore()
	a := &types.GraphNode{ID: "a", Name: "A"}
	st.addNode(a)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("t%02d", i)
		st.addEdge(&types.GraphEdge{ID: "e" + id, Type: "RIGUARDA", SourceID: "a", TargetID: id, Weight: 1},
			&types.GraphNode{ID: id, Name: id})
	}

	anchors := []types.Candidate{{Node: a, Path: types.PathKeyword, PrelimScore: 1}}

	opts := testOptions()
	opts.MaxPoolSize = 7 // anchor + three edge/node pairs
	opts.OtherFanout = 20
	expander := NewGraphExpander(st, nil, opts, testLogger())

	collected, _ := expander.Expand(context.Background(), anchors, types.IntentUnknown)
	assert.LessOrEqual(t, len(anchors)+len(collected), opts.MaxPoolSize)
}

func TestExpandTransientFailureDegrades(t *testing.T) {
	st, anchors := procedureGraph()
	st.neighborErr["creazione-commissione"] = &types.TransientStoreError{Op: "neighbors", Err: fmt.Errorf("timeout")}

	expander := NewGraphExpander(st, testIntents(), testOptions(), testLogger())
	collected, reasons := expander.Expand(context.Background(), anchors, "find_procedure")

	assert.Empty(t, collected)
	assert.Contains(t, reasons, types.ReasonTraversalDegraded)
}

func TestExpandDeterministic(t *testing.T) {
	st, anchors := procedureGraph()
	expander := NewGraphExpander(st, testIntents(), testOptions(), testLogger())

	first, _ := expander.Expand(context.Background(), anchors, "find_procedure")
	for i := 0; i < 5; i++ {
		again, _ := expander.Expand(context.Background(), anchors, "find_procedure")
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].Ref(), again[j].Ref())
		}
	}
}

// --- CandidateReranker ---

func rerankPool() []types.Candidate {
	return []types.Candidate{
		{Node: &types.GraphNode{ID: "a", Name: "Anchor"}, Path: types.PathKeyword, Hop: 0, PrelimScore: 2.0},
		{Node: &types.GraphNode{ID: "b", Name: "One hop"}, Path: types.PathTraversal, Hop: 1, PrelimScore: 0.9},
		{Node: &types.GraphNode{ID: "c", Name: "Two hops"}, Path: types.PathTraversal, Hop: 2, PrelimScore: 0.5},
	}
}

func TestRerankAppliesHopPenalty(t *testing.T) {
	sc := &fakeScorer{scoreFn: func(query, passage string) (float64, error) {
		return 0.9, nil
	}}

	opts := testOptions()
	opts.HopPenalty = 0.1
	reranker := NewCandidateReranker(sc, opts, testLogger())

	pool, reasons := reranker.Rerank(context.Background(), "query", rerankPool())
	assert.Empty(t, reasons)

	byRef := make(map[string]types.Candidate)
	for _, cand := range pool {
		byRef[cand.Ref()] = cand
	}
	assert.InDelta(t, 0.9, byRef["a"].Score, 1e-9)
	assert.InDelta(t, 0.8, byRef["b"].Score, 1e-9)
	assert.InDelta(t, 0.7, byRef["c"].Score, 1e-9)
	for _, cand := range pool {
		assert.True(t, cand.Scored)
	}
}

func TestRerankTimeoutKeepsPrelimScore(t *testing.T) {
	// One of the scoring calls times out; the candidate survives on its
	// scaled preliminary score.
	sc := &fakeScorer{scoreFn: func(query, passage string) (float64, error) {
		if strings.Contains(passage, "One hop") {
			return 0, context.DeadlineExceeded
		}
		return 0.9, nil
	}}

	reranker := NewCandidateReranker(sc, testOptions(), testLogger())
	pool, reasons := reranker.Rerank(context.Background(), "query", rerankPool())

	assert.Contains(t, reasons, types.ReasonRerankerTimeout)

	byRef := make(map[string]types.Candidate)
	for _, cand := range pool {
		byRef[cand.Ref()] = cand
	}
	failed := byRef["b"]
	assert.False(t, failed.Scored)
	assert.InDelta(t, 0.9/2.0, failed.Score, 1e-9) // prelim scaled by pool max
	assert.True(t, byRef["a"].Scored)
	assert.True(t, byRef["c"].Scored)
	assert.Len(t, pool, 3)
}

func TestRerankScoringUnavailable(t *testing.T) {
	sc := &fakeScorer{scoreFn: func(query, passage string) (float64, error) {
		return 0, fmt.Errorf("open breaker: %w", types.ErrScoringUnavailable)
	}}

	reranker := NewCandidateReranker(sc, testOptions(), testLogger())
	pool, reasons := reranker.Rerank(context.Background(), "query", rerankPool())

	assert.Contains(t, reasons, types.ReasonRerankerUnavailable)
	for _, cand := range pool {
		assert.False(t, cand.Scored)
		assert.GreaterOrEqual(t, cand.Score, 0.0)
		assert.LessOrEqual(t, cand.Score, 1.0)
	}
}

func TestRerankNilScorerSkipsStep(t *testing.T) {
	reranker := NewCandidateReranker(nil, testOptions(), testLogger())
	pool, reasons := reranker.Rerank(context.Background(), "query", rerankPool())

	assert.Equal(t, []string{types.ReasonRerankerUnavailable}, reasons)
	for _, cand := range pool {
		assert.False(t, cand.Scored)
	}
	// The anchor holds the pool maximum and scales to exactly one.
	assert.InDelta(t, 1.0, pool[0].Score, 1e-9)
}

// --- AssembleBundle ---

func TestAssembleOrdersAndDeduplicates(t *testing.T) {
	node := &types.GraphNode{ID: "dup", Name: "Nodo"}
	pool := []types.Candidate{
		{Node: &types.GraphNode{ID: "low", Name: "Basso"}, Score: 0.2, Scored: true},
		{Node: node, Score: 0.9, Hop: 1, Scored: true},
		{Node: node, Score: 0.4, Hop: 2, Scored: true},
		{Node: &types.GraphNode{ID: "high", Name: "Alto"}, Score: 0.95, Scored: true},
	}

	items := AssembleBundle(pool, testOptions())

	refs := make([]string, len(items))
	for i, item := range items {
		refs[i] = item.Ref()
	}
	assert.Equal(t, []string{"high", "dup", "low"}, refs)
}

func TestAssembleTieBreaksOnHopThenRef(t *testing.T) {
	pool := []types.Candidate{
		{Node: &types.GraphNode{ID: "b", Name: "B"}, Score: 0.5, Hop: 1, Scored: true},
		{Node: &types.GraphNode{ID: "a", Name: "A"}, Score: 0.5, Hop: 2, Scored: true},
		{Node: &types.GraphNode{ID: "c", Name: "C"}, Score: 0.5, Hop: 1, Scored: true},
	}

	items := AssembleBundle(pool, testOptions())

	refs := make([]string, len(items))
	for i, item := range items {
		refs[i] = item.Ref()
	}
	assert.Equal(t, []string{"b", "c", "a"}, refs)
}

func TestAssembleHonorsMaxItems(t *testing.T) {
	var pool []types.Candidate
	for i := 0; i < 50; i++ {
		pool = append(pool, types.Candidate{
			Node:   &types.GraphNode{ID: fmt.Sprintf("n%02d", i), Name: "Nodo"},
			Score:  float64(i) / 50,
			Scored: true,
		})
	}

	opts := testOptions()
	opts.MaxItems = 7
	assert.Len(t, AssembleBundle(pool, opts), 7)
}

func TestAssembleHonorsMaxChars(t *testing.T) {
	long := strings.Repeat("x", 90)
	pool := []types.Candidate{
		{Chunk: &types.TextChunk{ID: "c1", Document: "d", Text: long}, Score: 0.9, Scored: true},
		{Chunk: &types.TextChunk{ID: "c2", Document: "d", Text: long}, Score: 0.8, Scored: true},
		{Chunk: &types.TextChunk{ID: "c3", Document: "d", Text: long}, Score: 0.7, Scored: true},
	}

	opts := testOptions()
	opts.MaxChars = 200
	items := AssembleBundle(pool, opts)
	assert.Len(t, items, 2)
}

func TestAssembleTruncatesOversizedFirstItem(t *testing.T) {
	pool := []types.Candidate{
		{Chunk: &types.TextChunk{ID: "c1", Document: "d", Text: strings.Repeat("a", 500)}, Score: 0.9, Scored: true},
	}

	opts := testOptions()
	opts.MaxChars = 100
	items := AssembleBundle(pool, opts)

	require.Len(t, items, 1)
	assert.Len(t, items[0].Text(), 100)
	// The pool's chunk is untouched.
	assert.Len(t, pool[0].Chunk.Text, 500)
}

func TestAssembleTruncatesOversizedNodeName(t *testing.T) {
	pool := []types.Candidate{
		{Node: &types.GraphNode{ID: "n1", Name: strings.Repeat("n", 300), Description: "desc"}, Score: 0.9, Scored: true},
	}

	opts := testOptions()
	opts.MaxChars = 100
	items := AssembleBundle(pool, opts)

	require.Len(t, items, 1)
	assert.LessOrEqual(t, len(items[0].Text()), 100)
	assert.Len(t, pool[0].Node.Name, 300)
}

func TestAssembleTruncatesOversizedEdge(t *testing.T) {
	long := strings.Repeat("e", 200)
	pool := []types.Candidate{
		{Edge: &types.GraphEdge{ID: "e1", Type: "RIGUARDA", SourceID: long, TargetID: long}, Score: 0.9, Scored: true},
	}

	opts := testOptions()
	opts.MaxChars = 80
	items := AssembleBundle(pool, opts)

	require.Len(t, items, 1)
	assert.LessOrEqual(t, len(items[0].Text()), 80)
}
