package scorer

import (
	"context"
	"encoding/json"
	"fmt"

	jsonrepair "github.com/kaptinlin/jsonrepair"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultScoringModel = "gpt-4o-mini"

	scoringSystemPrompt = `You are a relevance judge. Given a question and a passage, ` +
		`rate how useful the passage is for answering the question. ` +
		`Respond with JSON only: {"score": <number between 0.0 and 1.0>}`
)

// OpenAIScorer scores query/passage relevance with a chat completion
// returning a JSON score. Malformed responses are repaired before parsing.
type OpenAIScorer struct {
	client *openai.Client
	model  string
}

var _ Client = (*OpenAIScorer)(nil)

// NewOpenAIScorer creates an OpenAI-backed relevance scorer.
func NewOpenAIScorer(apiKey string, config Config) *OpenAIScorer {
	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	model := config.Model
	if model == "" {
		model = defaultScoringModel
	}

	return &OpenAIScorer{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// ScoreRelevance scores the passage against the query, in [0,1].
func (s *OpenAIScorer) ScoreRelevance(ctx context.Context, query, passage string) (float64, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: scoringSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Question: %s\n\nPassage: %s", query, passage)},
		},
		Temperature: 0,
		MaxTokens:   32,
	})
	if err != nil {
		return 0, fmt.Errorf("scoring request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("scoring returned no choices")
	}

	score, err := parseScore(resp.Choices[0].Message.Content)
	if err != nil {
		return 0, err
	}
	return score, nil
}

// Close cleans up any resources.
func (s *OpenAIScorer) Close() error {
	return nil
}

// parseScore extracts the score from an LLM response, repairing malformed
// JSON first.
func parseScore(content string) (float64, error) {
	repaired, _ := jsonrepair.JSONRepair(content)
	if repaired == "" {
		repaired = content
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		// Bare number responses happen with small models.
		var bare float64
		if err2 := json.Unmarshal([]byte(repaired), &bare); err2 == nil {
			return clampScore(bare), nil
		}
		return 0, fmt.Errorf("failed to parse score from %q: %w", content, err)
	}
	return clampScore(parsed.Score), nil
}
