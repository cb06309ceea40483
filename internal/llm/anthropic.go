package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic calls the Anthropic Messages API through the official SDK.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates a new Anthropic API client with the given per-request
// timeout.
func NewAnthropic(apiKey, model string, timeout time.Duration) *Anthropic {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
	)
	return &Anthropic{client: &client, model: model}
}

// Complete sends a prompt to the Anthropic API.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (*Response, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   2048,
		Temperature: anthropic.Float(0.3),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api: %w", err)
	}

	text := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{
		Content:    text,
		Provider:   "anthropic",
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}, nil
}
