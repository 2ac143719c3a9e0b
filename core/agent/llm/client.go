// Package llm wraps the OpenAI chat-completion and embedding APIs behind the
// pipeline's completion gateway port.
package llm

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"mailliam_server/pkg/resilience"
)

const (
	DefaultModel      = "gpt-4o-mini"
	DefaultEmbedModel = string(openai.AdaEmbeddingV2)
)

// Client is the concrete completion gateway. It is constructed once at
// bootstrap and injected into every pipeline stage; there is no package-level
// shared client.
type Client struct {
	client     *openai.Client
	model      string
	embedModel openai.EmbeddingModel
	maxTokens  int
	maxRetries int
	breaker    *resilience.CircuitBreaker
}

// ClientConfig holds gateway configuration.
type ClientConfig struct {
	APIKey     string
	Model      string
	EmbedModel string
	MaxTokens  int
	MaxRetries int
}

// NewClient creates a gateway with defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(ClientConfig{APIKey: apiKey})
}

// NewClientWithConfig creates a gateway with explicit configuration.
func NewClientWithConfig(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = DefaultEmbedModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Client{
		client:     openai.NewClient(cfg.APIKey),
		model:      model,
		embedModel: openai.EmbeddingModel(embedModel),
		maxTokens:  maxTokens,
		maxRetries: maxRetries,
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("openai")),
	}
}

// Complete sends a single user prompt and returns the raw response text.
// An empty choice list degrades to an empty string, not an error.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	return c.chat(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, temperature)
}

// CompleteWithSystem sends a system + user prompt pair.
func (c *Client) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userPrompt,
	})
	return c.chat(ctx, messages, temperature)
}

func (c *Client) chat(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32) (string, error) {
	var content string

	err := c.withRetry(ctx, func() error {
		return c.breaker.Execute(func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				MaxTokens:   c.maxTokens,
				Temperature: temperature,
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) > 0 {
				content = resp.Choices[0].Message.Content
			}
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// EmbedBatch embeds texts in a single API call, preserving input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result [][]float32
	err := c.withRetry(ctx, func() error {
		return c.breaker.Execute(func() error {
			resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: c.embedModel,
				Input: texts,
			})
			if err != nil {
				return err
			}

			result = make([][]float32, len(resp.Data))
			for i, data := range resp.Data {
				result[i] = data.Embedding
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withRetry retries transient failures with linear backoff. Circuit-open
// errors are not retried since the breaker already decided the backend is
// down.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if lastErr == resilience.ErrCircuitOpen || lastErr == resilience.ErrTooManyRequest {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}
