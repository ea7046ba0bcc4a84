package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/soundprediction/cerca/pkg/store"
	"github.com/soundprediction/cerca/pkg/types"
)

// defaultEdgeWeight is the preliminary score for edges ingested without a
// confidence value.
const defaultEdgeWeight = 0.5

// GraphExpander walks outward from the anchor set, preferring the relation
// types configured for the query intent. Expansion is bounded by hop depth,
// per-node fan-out, and a global pool budget.
type GraphExpander struct {
	store   store.Store
	intents types.IntentRelationMap
	opts    Options
	logger  *slog.Logger
}

// NewGraphExpander creates a graph expander.
func NewGraphExpander(st store.Store, intents types.IntentRelationMap, opts Options, logger *slog.Logger) *GraphExpander {
	return &GraphExpander{
		store:   st,
		intents: intents,
		opts:    opts,
		logger:  logger,
	}
}

// Expand runs bounded BFS from the anchors and returns the traversal
// candidates (edges and newly reached nodes). Anchors count toward the pool
// budget but are not returned again. Transient neighbor-fetch failures are
// absorbed into the returned reasons.
func (e *GraphExpander) Expand(ctx context.Context, anchors []types.Candidate, intent string) ([]types.Candidate, []string) {
	if len(anchors) == 0 || e.opts.MaxHops == 0 {
		return nil, nil
	}

	preferred := make(map[types.RelationType]bool)
	for _, rel := range e.intents.PreferredFor(intent) {
		preferred[rel] = true
	}

	visited := make(map[string]bool, len(anchors))
	frontier := make([]types.Candidate, 0, len(anchors))
	for _, anchor := range anchors {
		if anchor.Node == nil {
			continue
		}
		visited[anchor.Node.ID] = true
		frontier = append(frontier, anchor)
	}

	var (
		collected []types.Candidate
		reasons   []string
	)
	poolSize := len(anchors)

	for hop := 1; hop <= e.opts.MaxHops && len(frontier) > 0 && poolSize < e.opts.MaxPoolSize; hop++ {
		// Frontier order is fixed before the concurrent fetch so the
		// merge below is deterministic regardless of arrival order.
		sort.Slice(frontier, func(i, j int) bool {
			return frontier[i].Node.ID < frontier[j].Node.ID
		})

		entries, errs := e.fetchNeighbors(ctx, frontier)

		var nextFrontier []types.Candidate
		for i, parent := range frontier {
			if poolSize >= e.opts.MaxPoolSize {
				break
			}
			if errs[i] != nil {
				e.logger.WarnContext(ctx, "neighbor fetch failed",
					"node_id", parent.Node.ID, "hop", hop, "error", errs[i])
				reasons = append(reasons, types.ReasonTraversalDegraded)
				continue
			}

			accepted := e.selectNeighbors(entries[i], preferred, visited)
			for _, entry := range accepted {
				if poolSize+2 > e.opts.MaxPoolSize {
					poolSize = e.opts.MaxPoolSize
					break
				}
				visited[entry.Node.ID] = true

				via := make([]string, 0, len(parent.Via)+1)
				via = append(via, parent.Via...)
				via = append(via, string(entry.Edge.Type))

				weight := entry.Edge.Weight
				if weight == 0 {
					weight = defaultEdgeWeight
				}

				edgeCand := types.Candidate{
					Edge:        entry.Edge,
					Path:        types.PathTraversal,
					Hop:         hop,
					Via:         via,
					PrelimScore: weight,
				}
				nodeCand := types.Candidate{
					Node:        entry.Node,
					Path:        types.PathTraversal,
					Hop:         hop,
					Via:         via,
					PrelimScore: weight,
				}
				collected = append(collected, edgeCand, nodeCand)
				poolSize += 2
				nextFrontier = append(nextFrontier, nodeCand)
			}
		}
		frontier = nextFrontier
	}

	return collected, reasons
}

// fetchNeighbors fetches each frontier node's neighbors concurrently,
// returning results positionally aligned with the frontier.
func (e *GraphExpander) fetchNeighbors(ctx context.Context, frontier []types.Candidate) ([][]store.NeighborEntry, []error) {
	entries := make([][]store.NeighborEntry, len(frontier))
	errs := make([]error, len(frontier))

	fetchLimit := (e.opts.PreferredFanout + e.opts.OtherFanout) * 4

	var wg sync.WaitGroup
	for i, parent := range frontier {
		wg.Add(1)
		go func(idx int, nodeID string) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
			defer cancel()

			errs[idx] = store.WithRetry(callCtx, func() error {
				var innerErr error
				entries[idx], innerErr = e.store.Neighbors(callCtx, nodeID, nil, fetchLimit)
				return innerErr
			})
		}(i, parent.Node.ID)
	}
	wg.Wait()

	return entries, errs
}

// selectNeighbors partitions a node's edges into preferred and other,
// orders each partition by weight then edge id, and takes up to the
// per-partition fan-out of unvisited targets.
func (e *GraphExpander) selectNeighbors(entries []store.NeighborEntry, preferred map[types.RelationType]bool, visited map[string]bool) []store.NeighborEntry {
	var preferredEdges, otherEdges []store.NeighborEntry
	for _, entry := range entries {
		if entry.Edge == nil || entry.Node == nil || entry.Node.ID == "" {
			continue
		}
		if preferred[entry.Edge.Type] {
			preferredEdges = append(preferredEdges, entry)
		} else {
			otherEdges = append(otherEdges, entry)
		}
	}

	byWeight := func(edges []store.NeighborEntry) {
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].Edge.Weight != edges[j].Edge.Weight {
				return edges[i].Edge.Weight > edges[j].Edge.Weight
			}
			return edges[i].Edge.ID < edges[j].Edge.ID
		})
	}
	byWeight(preferredEdges)
	byWeight(otherEdges)

	// Parallel edges to one target consume a single slot.
	seen := make(map[string]bool)
	take := func(edges []store.NeighborEntry, budget int) []store.NeighborEntry {
		out := make([]store.NeighborEntry, 0, budget)
		for _, entry := range edges {
			if len(out) == budget {
				break
			}
			if visited[entry.Node.ID] || seen[entry.Node.ID] {
				continue
			}
			seen[entry.Node.ID] = true
			out = append(out, entry)
		}
		return out
	}

	accepted := take(preferredEdges, e.opts.PreferredFanout)
	return append(accepted, take(otherEdges, e.opts.OtherFanout)...)
}
