// Package openai implements llm.Generator on the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/llm"
	goopenai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when neither the client nor the request names one.
const DefaultModel = goopenai.GPT4o

// Client wraps a go-openai client.
type Client struct {
	api   *goopenai.Client
	model string
}

// Option configures a Client.
type Option func(*goopenai.ClientConfig, *Client)

// WithBaseURL points the client at a compatible endpoint (including the /v1 suffix).
func WithBaseURL(url string) Option {
	return func(cfg *goopenai.ClientConfig, _ *Client) {
		cfg.BaseURL = strings.TrimSuffix(url, "/")
	}
}

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(_ *goopenai.ClientConfig, c *Client) {
		c.model = model
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *goopenai.ClientConfig, _ *Client) {
		cfg.HTTPClient = hc
	}
}

// New creates a client. The API key is required.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key required")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	c := &Client{model: DefaultModel}
	for _, opt := range opts {
		opt(&cfg, c)
	}
	c.api = goopenai.NewClientWithConfig(cfg)
	return c, nil
}

// Generate returns the continuation of req. The chat API has no native
// prefill, so a trailing assistant message is sent as-is and stripped from
// the reply when the model repeats it.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	// A zero temperature is dropped by omitempty and would mean the API default.
	temp := float32(req.Temperature)
	if temp == 0 {
		temp = math.SmallestNonzeroFloat32
	}

	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := goopenai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temp,
		Stop:        req.Stop,
	})
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from API")
	}

	text := resp.Choices[0].Message.Content
	if p := req.Prefill(); p != "" {
		text = strings.TrimPrefix(text, p)
	}
	return text, nil
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if retryable(apiErr.HTTPStatusCode) {
			return llm.NewTransientError(err)
		}
		return err
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		if retryable(reqErr.HTTPStatusCode) {
			return llm.NewTransientError(err)
		}
		return err
	}
	// Transport failures never reached the API.
	return llm.NewTransientError(err)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
