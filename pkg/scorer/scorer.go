// Package scorer provides relevance scoring clients for query/passage pairs.
//
// Scores are in [0,1]. The reranking step treats scoring as best-effort:
// per-call failures never drop candidates, and an open circuit breaker skips
// the step entirely.
package scorer

import "context"

// Client is the relevance scoring contract.
type Client interface {
	// ScoreRelevance scores how relevant the passage is to the query,
	// in [0,1]. It may fail or time out per call; callers keep the
	// candidate's preliminary score in that case.
	ScoreRelevance(ctx context.Context, query, passage string) (float64, error)

	// Close cleans up any resources.
	Close() error
}

// Config holds scoring client settings.
type Config struct {
	// Model is the model used for scoring.
	Model string `json:"model" mapstructure:"model"`

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string `json:"base_url" mapstructure:"base_url"`
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
