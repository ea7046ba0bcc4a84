package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/soundprediction/cerca/pkg/metrics"
	"github.com/soundprediction/cerca/pkg/scorer"
	"github.com/soundprediction/cerca/pkg/types"
)

// CandidateReranker scores the candidate pool against the query text.
// Scoring is best-effort: a failed call leaves the candidate on its scaled
// preliminary score, and a missing or unavailable scorer skips the step for
// the whole pool. Candidates are never dropped here.
type CandidateReranker struct {
	scorer scorer.Client
	opts   Options
	logger *slog.Logger
}

// NewCandidateReranker creates a reranker. A nil scorer client is allowed
// and disables scoring.
func NewCandidateReranker(sc scorer.Client, opts Options, logger *slog.Logger) *CandidateReranker {
	return &CandidateReranker{
		scorer: sc,
		opts:   opts,
		logger: logger,
	}
}

// Rerank scores the pool in place and returns it with any degradation
// reasons. Scored candidates get clamp(raw - HopPenalty*Hop, 0, 1); failed
// ones keep their preliminary score scaled into [0,1] by the pool maximum.
func (r *CandidateReranker) Rerank(ctx context.Context, queryText string, pool []types.Candidate) ([]types.Candidate, []string) {
	if len(pool) == 0 {
		return pool, nil
	}

	prelimMax := poolPrelimMax(pool)

	if r.scorer == nil {
		for i := range pool {
			passThrough(&pool[i], prelimMax)
		}
		return pool, []string{types.ReasonRerankerUnavailable}
	}

	var (
		mu        sync.Mutex
		reasons   []string
		wg        sync.WaitGroup
		semaphore = make(chan struct{}, r.opts.MaxConcurrency)
	)

	for i := range pool {
		wg.Add(1)
		go func(cand *types.Candidate) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
			defer cancel()

			raw, err := r.scorer.ScoreRelevance(callCtx, queryText, cand.Text())
			if err != nil {
				reason := classifyScoringFailure(err)
				metrics.ObserveScoringCall(scoringStatus(reason))
				r.logger.WarnContext(ctx, "scoring call failed", "ref", cand.Ref(), "error", err)
				passThrough(cand, prelimMax)

				mu.Lock()
				reasons = append(reasons, reason)
				mu.Unlock()
				return
			}

			metrics.ObserveScoringCall("ok")
			cand.Score = clamp01(raw - r.opts.HopPenalty*float64(cand.Hop))
			cand.Scored = true
		}(&pool[i])
	}
	wg.Wait()

	return pool, reasons
}

// passThrough keeps a candidate on its preliminary score, scaled into [0,1]
// by the pool maximum.
func passThrough(cand *types.Candidate, prelimMax float64) {
	cand.Score = clamp01(cand.PrelimScore / prelimMax)
	cand.Scored = false
}

func poolPrelimMax(pool []types.Candidate) float64 {
	max := 0.0
	for i := range pool {
		if pool[i].PrelimScore > max {
			max = pool[i].PrelimScore
		}
	}
	if max == 0 {
		return 1
	}
	return max
}

func classifyScoringFailure(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.ReasonRerankerTimeout
	case errors.Is(err, types.ErrScoringUnavailable):
		return types.ReasonRerankerUnavailable
	default:
		return types.ReasonRerankerError
	}
}

func scoringStatus(reason string) string {
	switch reason {
	case types.ReasonRerankerTimeout:
		return "timeout"
	case types.ReasonRerankerUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
