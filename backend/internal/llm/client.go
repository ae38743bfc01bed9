package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"graphrag/backend/pkg/errors"
	"graphrag/backend/pkg/logger"
)

// Client handles communication with the LLM via LiteLLM
type Client struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

const systemPrompt = "You are a helpful assistant. Use the memory context, when present, to stay consistent with the user's past questions."

// NewClient creates a new LLM client. timeout bounds each attempt;
// the backend's own latency is unbounded otherwise.
func NewClient(baseURL, apiKey, modelID string, timeout time.Duration) *Client {
	// For LiteLLM, we can use a dummy API key if not provided
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  modelID,
		logger: logger.Get(),
	}
}

// Generate sends the prompt to the LLM and returns the completion text
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0.7,
	}

	// Retry with linear backoff
	var resp openai.ChatCompletionResponse
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			c.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			time.Sleep(backoff)
		}

		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		c.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", c.model),
		)
	}

	if err != nil {
		return "", errors.NewGenerationFailed(c.model, maxRetries, false, err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.ErrGenerationEmpty
	}

	content := resp.Choices[0].Message.Content

	c.logger.Debug("LLM response generated",
		zap.String("model", c.model),
		zap.Int("length", len(content)),
	)

	return content, nil
}
