package retrieval

import (
	"time"

	"github.com/soundprediction/cerca/pkg/config"
	"github.com/soundprediction/cerca/pkg/types"
)

// Options are the tuning knobs of a retrieval engine. Zero values are
// invalid; start from DefaultOptions or OptionsFromConfig.
type Options struct {
	// MaxAnchors caps the merged anchor set.
	MaxAnchors int

	// VectorK is the nearest-neighbor count requested from the vector
	// index.
	VectorK int

	// SimilarityFloor drops vector hits below this similarity.
	SimilarityFloor float64

	// MaxHops bounds graph expansion depth from the anchor set.
	MaxHops int

	// PreferredFanout and OtherFanout are the per-node, per-hop budgets
	// for edges whose relation type is (respectively is not) preferred
	// by the query intent.
	PreferredFanout int
	OtherFanout     int

	// MaxPoolSize is the global candidate pool budget, anchors included.
	MaxPoolSize int

	// MaxConcurrency bounds in-flight relevance scoring calls.
	MaxConcurrency int

	// HopPenalty is subtracted from the reranked score once per hop.
	HopPenalty float64

	// MaxItems and MaxChars bound the assembled bundle.
	MaxItems int
	MaxChars int

	// MaxLinkedChunks caps how many source chunks are attached per node.
	MaxLinkedChunks int

	// RequestTimeout bounds the whole retrieval call; CallTimeout bounds
	// each external call within it.
	RequestTimeout time.Duration
	CallTimeout    time.Duration
}

// DefaultOptions returns the tuning defaults.
func DefaultOptions() Options {
	return Options{
		MaxAnchors:      10,
		VectorK:         20,
		SimilarityFloor: 0.7,
		MaxHops:         2,
		PreferredFanout: 5,
		OtherFanout:     2,
		MaxPoolSize:     200,
		MaxConcurrency:  5,
		HopPenalty:      0.1,
		MaxItems:        20,
		MaxChars:        8000,
		MaxLinkedChunks: 3,
		RequestTimeout:  30 * time.Second,
		CallTimeout:     10 * time.Second,
	}
}

// OptionsFromConfig converts the file-level retrieval section into Options.
func OptionsFromConfig(cfg config.RetrievalConfig) Options {
	return Options{
		MaxAnchors:      cfg.MaxAnchors,
		VectorK:         cfg.VectorK,
		SimilarityFloor: cfg.SimilarityFloor,
		MaxHops:         cfg.MaxHops,
		PreferredFanout: cfg.PreferredFanout,
		OtherFanout:     cfg.OtherFanout,
		MaxPoolSize:     cfg.MaxPoolSize,
		MaxConcurrency:  cfg.MaxConcurrency,
		HopPenalty:      cfg.HopPenalty,
		MaxItems:        cfg.MaxItems,
		MaxChars:        cfg.MaxChars,
		MaxLinkedChunks: cfg.MaxLinkedChunks,
		RequestTimeout:  time.Duration(cfg.RequestTimeout) * time.Second,
		CallTimeout:     time.Duration(cfg.CallTimeout) * time.Second,
	}
}

// Validate rejects unusable options at construction time.
func (o Options) Validate() error {
	check := func(field string, ok bool, reason string) error {
		if ok {
			return nil
		}
		return &types.ConfigurationError{Field: field, Reason: reason}
	}

	if err := check("retrieval.max_anchors", o.MaxAnchors > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("retrieval.vector_k", o.VectorK > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("retrieval.similarity_floor", o.SimilarityFloor >= 0 && o.SimilarityFloor <= 1, "must be in [0,1]"); err != nil {
		return err
	}
	if err := check("retrieval.max_hops", o.MaxHops >= 0, "cannot be negative"); err != nil {
		return err
	}
	if err := check("retrieval.preferred_fanout", o.PreferredFanout > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("retrieval.other_fanout", o.OtherFanout >= 0, "cannot be negative"); err != nil {
		return err
	}
	if err := check("retrieval.max_pool_size", o.MaxPoolSize > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("retrieval.max_concurrency", o.MaxConcurrency > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("retrieval.hop_penalty", o.HopPenalty >= 0, "cannot be negative"); err != nil {
		return err
	}
	if err := check("retrieval.max_items", o.MaxItems > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("retrieval.max_chars", o.MaxChars > 0, "must be positive"); err != nil {
		return err
	}
	if err := check("retrieval.max_linked_chunks", o.MaxLinkedChunks >= 0, "cannot be negative"); err != nil {
		return err
	}
	if err := check("retrieval.request_timeout", o.RequestTimeout > 0, "must be positive"); err != nil {
		return err
	}
	return check("retrieval.call_timeout", o.CallTimeout > 0, "must be positive")
}
