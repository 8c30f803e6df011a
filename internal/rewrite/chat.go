package rewrite

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/utafrali/moviesearch/pkg/errors"
)

// DefaultChatModel is used when ChatConfig.Model is empty.
const DefaultChatModel = "deepseek-chat"

const systemPrompt = "You turn questions about movies into short keyword search queries. " +
	"Answer with the query only."

// ChatConfig configures an OpenAI-compatible chat endpoint.
type ChatConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// ChatGenerator asks a chat-completions model for the search string.
type ChatGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewChatGenerator creates a generator for any OpenAI-compatible API.
func NewChatGenerator(cfg ChatConfig) *ChatGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	return &ChatGenerator{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

func (g *ChatGenerator) Generate(ctx context.Context, input string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Prompt(input)},
		},
	})
	if err != nil {
		return "", chatError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion has no choices: %w", apperrors.ErrRewriteFailed)
	}
	return resp.Choices[0].Message.Content, nil
}

// chatError keeps the upstream status and message and wraps ErrRewriteFailed.
func chatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("chat completion error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, apperrors.ErrRewriteFailed)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("chat completion error %d: %s: %w", reqErr.HTTPStatusCode, string(reqErr.Body), apperrors.ErrRewriteFailed)
	}
	return fmt.Errorf("chat completion failed: %v: %w", err, apperrors.ErrRewriteFailed)
}
