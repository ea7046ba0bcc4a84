package types

import "sort"

// Degradation reasons surfaced in ContextBundle.DegradedReasons. Downstream
// consumers and observability layers key on these strings.
const (
	ReasonVectorIndexUnavailable   = "vector_index_unavailable"
	ReasonKeywordSearchUnavailable = "keyword_search_unavailable"
	ReasonTraversalDegraded        = "graph_traversal_degraded"
	ReasonChunkStoreUnavailable    = "chunk_store_unavailable"
	ReasonRerankerTimeout          = "reranker_timeout"
	ReasonRerankerUnavailable      = "reranker_unavailable"
	ReasonRerankerError            = "reranker_error"
)

// ContextBundle is the engine's sole output: an ordered, deduplicated
// sequence of scored candidates, plus degradation flags so consumers can
// distinguish full-quality from best-effort results. A bundle is never
// mutated after it is returned.
type ContextBundle struct {
	Items []Candidate `json:"items"`

	// Degraded is true when one or more retrieval sub-paths failed and
	// the bundle was produced best-effort.
	Degraded        bool     `json:"degraded"`
	DegradedReasons []string `json:"degraded_reasons,omitempty"`
}

// Empty reports whether the bundle carries no context items.
func (b *ContextBundle) Empty() bool {
	return b == nil || len(b.Items) == 0
}

// Refs returns the underlying ids of all items, in bundle order.
func (b *ContextBundle) Refs() []string {
	refs := make([]string, len(b.Items))
	for i := range b.Items {
		refs[i] = b.Items[i].Ref()
	}
	return refs
}

// NormalizeReasons sorts and deduplicates a reason list and returns it.
// A nil or empty input stays nil so the JSON field is omitted.
func NormalizeReasons(reasons []string) []string {
	if len(reasons) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
