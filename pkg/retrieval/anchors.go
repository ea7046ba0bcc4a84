package retrieval

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/soundprediction/cerca/pkg/embedder"
	"github.com/soundprediction/cerca/pkg/store"
	"github.com/soundprediction/cerca/pkg/types"
)

// Keyword match weights. Exact name matches dominate, name substrings beat
// description substrings.
const (
	exactNameScore     = 2.0
	nameSubstringScore = 1.0
	descSubstringScore = 0.5
)

// AnchorResolver locates entry points into the graph by running the keyword
// and vector paths concurrently and merging the results.
type AnchorResolver struct {
	store    store.Store
	embedder embedder.Client
	opts     Options
	logger   *slog.Logger
}

// NewAnchorResolver creates an anchor resolver.
func NewAnchorResolver(st store.Store, emb embedder.Client, opts Options, logger *slog.Logger) *AnchorResolver {
	return &AnchorResolver{
		store:    st,
		embedder: emb,
		opts:     opts,
		logger:   logger,
	}
}

// AnchorSet is the outcome of anchor resolution. An empty Candidates slice
// with no failures is a valid result, not a degradation.
type AnchorSet struct {
	Candidates []types.Candidate
	Reasons    []string

	// KeywordFailed / VectorFailed record hard path failures so the
	// engine can tell "nothing matched" apart from "nothing reachable".
	KeywordFailed bool
	VectorFailed  bool
}

// scoredAnchor carries the tie-break key alongside the candidate during
// merging.
type scoredAnchor struct {
	cand     types.Candidate
	matchLen int
}

// Resolve runs both anchor paths and merges by node id. Nodes found by both
// paths sum their scores and are tagged as confirmed by both.
func (r *AnchorResolver) Resolve(ctx context.Context, query types.Query) AnchorSet {
	var (
		wg          sync.WaitGroup
		keywordHits map[string]scoredAnchor
		keywordErr  error
		vectorHits  []store.NodeSimilarity
		vectorErr   error
	)

	mentions := cleanMentions(query.EntityMentions)
	if len(mentions) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keywordHits, keywordErr = r.keywordAnchors(ctx, mentions)
		}()
	}

	if strings.TrimSpace(query.Text) != "" && r.embedder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorHits, vectorErr = r.vectorAnchors(ctx, query.Text)
		}()
	}

	wg.Wait()

	result := AnchorSet{}
	if keywordErr != nil {
		r.logger.WarnContext(ctx, "keyword anchor path failed", "error", keywordErr)
		result.Reasons = append(result.Reasons, types.ReasonKeywordSearchUnavailable)
		result.KeywordFailed = true
	}
	if vectorErr != nil {
		r.logger.WarnContext(ctx, "vector anchor path failed", "error", vectorErr)
		result.Reasons = append(result.Reasons, types.ReasonVectorIndexUnavailable)
		result.VectorFailed = true
	}

	merged := make(map[string]scoredAnchor, len(keywordHits)+len(vectorHits))
	for id, anchor := range keywordHits {
		merged[id] = anchor
	}
	for _, hit := range vectorHits {
		if hit.Node == nil || hit.Node.ID == "" {
			continue
		}
		if existing, ok := merged[hit.Node.ID]; ok {
			// Confirmed by both paths: sum the scores.
			existing.cand.PrelimScore += hit.Similarity
			existing.cand.Path = types.PathBoth
			merged[hit.Node.ID] = existing
			continue
		}
		merged[hit.Node.ID] = scoredAnchor{
			cand: types.Candidate{
				Node:        hit.Node,
				Path:        types.PathVector,
				Hop:         0,
				PrelimScore: hit.Similarity,
			},
			matchLen: math.MaxInt,
		}
	}

	anchors := make([]scoredAnchor, 0, len(merged))
	for _, anchor := range merged {
		anchors = append(anchors, anchor)
	}
	sort.Slice(anchors, func(i, j int) bool {
		if anchors[i].cand.PrelimScore != anchors[j].cand.PrelimScore {
			return anchors[i].cand.PrelimScore > anchors[j].cand.PrelimScore
		}
		if anchors[i].matchLen != anchors[j].matchLen {
			return anchors[i].matchLen < anchors[j].matchLen
		}
		return anchors[i].cand.Ref() < anchors[j].cand.Ref()
	})
	if len(anchors) > r.opts.MaxAnchors {
		anchors = anchors[:r.opts.MaxAnchors]
	}

	result.Candidates = make([]types.Candidate, len(anchors))
	for i, anchor := range anchors {
		result.Candidates[i] = anchor.cand
	}
	return result
}

// keywordAnchors fetches candidate nodes by substring matching and scores
// them per mention locally.
func (r *AnchorResolver) keywordAnchors(ctx context.Context, mentions []string) (map[string]scoredAnchor, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	var nodes []*types.GraphNode
	err := store.WithRetry(callCtx, func() error {
		var innerErr error
		nodes, innerErr = r.store.KeywordMatch(callCtx, mentions, r.opts.MaxAnchors*4)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	hits := make(map[string]scoredAnchor, len(nodes))
	for _, node := range nodes {
		if node == nil || node.ID == "" {
			continue
		}
		score, matchLen := scoreKeywordMatch(node, mentions)
		if score == 0 {
			continue
		}
		hits[node.ID] = scoredAnchor{
			cand: types.Candidate{
				Node:        node,
				Path:        types.PathKeyword,
				Hop:         0,
				PrelimScore: score,
			},
			matchLen: matchLen,
		}
	}
	return hits, nil
}

// vectorAnchors embeds the query text and searches the node vector index.
func (r *AnchorResolver) vectorAnchors(ctx context.Context, text string) ([]store.NodeSimilarity, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	embedding, err := r.embedder.EmbedSingle(callCtx, text)
	if err != nil {
		return nil, err
	}

	var hits []store.NodeSimilarity
	err = store.WithRetry(callCtx, func() error {
		var innerErr error
		hits, innerErr = r.store.VectorSearch(callCtx, embedding, r.opts.VectorK, r.opts.SimilarityFloor)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// scoreKeywordMatch sums per-mention match weights for a node and returns
// the length of the shortest matched mention for tie-breaking.
func scoreKeywordMatch(node *types.GraphNode, mentions []string) (float64, int) {
	name := strings.ToLower(node.Name)
	desc := strings.ToLower(node.Description)

	var score float64
	matchLen := math.MaxInt
	for _, mention := range mentions {
		matched := false
		switch {
		case name == mention:
			score += exactNameScore
			matched = true
		case strings.Contains(name, mention):
			score += nameSubstringScore
			matched = true
		case desc != "" && strings.Contains(desc, mention):
			score += descSubstringScore
			matched = true
		}
		if matched && len(mention) < matchLen {
			matchLen = len(mention)
		}
	}
	return score, matchLen
}

// cleanMentions lowercases and trims mentions, dropping empties.
func cleanMentions(mentions []string) []string {
	out := make([]string, 0, len(mentions))
	for _, m := range mentions {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}
