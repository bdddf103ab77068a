package llm

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	Model  string
	APIKey string
	client *anthropic.Client
}

// NewAnthropicProvider creates a provider reading its key from apiKeyEnv.
func NewAnthropicProvider(model, apiKeyEnv string, timeout time.Duration) *AnthropicProvider {
	p := &AnthropicProvider{Model: model, APIKey: os.Getenv(apiKeyEnv)}
	if p.APIKey != "" {
		client := anthropic.NewClient(
			option.WithAPIKey(p.APIKey),
			option.WithRequestTimeout(timeout),
			option.WithMaxRetries(0),
		)
		p.client = &client
	}
	return p
}

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool {
	return a.APIKey != "" && a.client != nil
}

// Generate sends a prompt to Anthropic and returns the concatenated text blocks.
func (a *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !a.IsConfigured() {
		return "", errors.New("Anthropic API key not configured")
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("empty Anthropic response")
	}
	return b.String(), nil
}
