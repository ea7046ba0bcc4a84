// Package retrieval implements the hybrid retrieval pipeline: anchor
// resolution over keyword and vector paths, intent-aware bounded graph
// expansion, best-effort relevance reranking, and context bundle assembly.
//
// The pipeline degrades gracefully: a failed sub-path marks the bundle
// degraded and records a reason instead of failing the request. A retrieval
// call returns an error only when every path is exhausted.
package retrieval
