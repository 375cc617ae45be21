package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// ErrNoChoices is returned when the provider answers without any completion
var ErrNoChoices = errors.New("llm: response has no choices")

// Completer produces a single completion for a prompt
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client talks to any OpenAI-compatible chat completions endpoint.
// Gemini is reached through its OpenAI-compatible base URL.
type Client struct {
	client openai.Client
	model  string
	vendor string
}

// NewClient creates a client for the given endpoint. Extra request options
// (retries, HTTP client) are appended after the key and base URL.
func NewClient(apiKey, baseURL, model, vendor string, opts ...option.RequestOption) *Client {
	all := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)

	return &Client{
		client: openai.NewClient(all...),
		model:  model,
		vendor: vendor,
	}
}

// Complete sends prompt as a single user message and asks for a JSON object back
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err == nil && len(resp.Choices) == 0 {
		err = ErrNoChoices
	}
	metrics.ObserveVendor(c.vendor, "completion", start, err)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", c.vendor, err)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
