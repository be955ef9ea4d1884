package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/techkwon/Qbot/pkg/config"
)

var (
	// ErrNotConfigured is returned when no API key was supplied.
	ErrNotConfigured = errors.New("llm client not configured")
	// ErrTimeout marks a call abandoned after its deadline.
	ErrTimeout = errors.New("llm request timed out")
	// ErrEmptyResponse is returned when the model answers without any choice.
	ErrEmptyResponse = errors.New("llm returned no choices")
)

// message is a single chat turn sent to the model.
type message struct {
	Role    string
	Content string
}

// Client calls an OpenAI-compatible chat completion endpoint with bounded retries.
type Client struct {
	api        *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
	interval   time.Duration
	logger     *zap.Logger
}

// New builds a client from configuration.
func New(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Client{
		api:        openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		timeout:    timeout,
		maxRetries: retries,
		interval:   500 * time.Millisecond,
		logger:     logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// CompleteJSON asks the model for a JSON object and decodes it into out. Undecodable answers are retried.
func (c *Client) CompleteJSON(ctx context.Context, system, user string, out interface{}) error {
	messages := []message{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
	format := &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}

	_, err := c.retry(ctx, func(callCtx context.Context) (string, error) {
		content, err := c.call(callCtx, messages, format)
		if err != nil {
			return "", err
		}
		if err := json.Unmarshal([]byte(extractJSON(content)), out); err != nil {
			return "", fmt.Errorf("decode llm json: %w", err)
		}
		return content, nil
	})
	return err
}

func (c *Client) retry(ctx context.Context, op func(context.Context) (string, error)) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.interval
	policy.MaxInterval = 10 * c.interval

	attempt := 0
	result, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		out, err := op(callCtx)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		if !retryable(err) {
			return "", backoff.Permanent(err)
		}
		c.logger.Warn("llm call failed", zap.Int("attempt", attempt), zap.String("model", c.model), zap.Error(err))
		return "", err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(c.maxRetries+1)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", err
	}
	return result, nil
}

func (c *Client) call(ctx context.Context, messages []message, format *openai.ChatCompletionResponseFormat) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:          c.model,
		Messages:       make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature:    0,
		ResponseFormat: format,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// retryable treats rate limits, server errors and transport failures as transient. Other 4xx are final.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusRetryable(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusRetryable(reqErr.HTTPStatusCode)
	}
	return true
}

func statusRetryable(status int) bool {
	if status == 0 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return true
	}
	return status >= http.StatusInternalServerError
}

// extractJSON strips markdown code fences some models wrap around JSON answers.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
