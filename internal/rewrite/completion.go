package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/utafrali/moviesearch/pkg/errors"
	"github.com/utafrali/moviesearch/pkg/httpclient"
)

// CompletionConfig configures a legacy text-completion endpoint.
type CompletionConfig struct {
	URL       string
	APIKey    string
	Model     string
	MaxTokens int
}

// CompletionGenerator calls a completions endpoint that takes
// {"prompt", "max_tokens"} and answers {"choices": [{"text"}]}.
type CompletionGenerator struct {
	cfg    CompletionConfig
	client *httpclient.Breaker
}

type completionRequest struct {
	Model     string `json:"model,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// NewCompletionGenerator creates a generator sending requests through client.
// While the breaker is open Generate fails without calling the endpoint.
func NewCompletionGenerator(cfg CompletionConfig, client *httpclient.Breaker) *CompletionGenerator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &CompletionGenerator{cfg: cfg, client: client}
}

func (g *CompletionGenerator) Generate(ctx context.Context, input string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:     g.cfg.Model,
		Prompt:    Prompt(input),
		MaxTokens: g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", httpclient.ParseResponseError(resp, "completion endpoint")
	}
	defer func() { _ = resp.Body.Close() }()

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion response: %v: %w", err, apperrors.ErrRewriteFailed)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices: %w", apperrors.ErrRewriteFailed)
	}
	return out.Choices[0].Text, nil
}
