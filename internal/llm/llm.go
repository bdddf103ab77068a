// Package llm wraps the language-model providers used to classify and
// summarize survey responses.
package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Provider is the interface for LLM providers.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	IsConfigured() bool
}

// StructuredProvider is implemented by providers that can constrain output
// to a JSON schema. The returned text is the raw JSON document.
type StructuredProvider interface {
	Provider
	GenerateStructured(ctx context.Context, prompt string, schema Schema, maxTokens int) (string, error)
}

// Settings selects and configures a provider.
type Settings struct {
	Provider        string // ollama, openai or anthropic
	Model           string // Ollama model
	OllamaURL       string
	OpenAIModel     string
	APIKeyEnv       string // env var holding the OpenAI key
	AnthropicModel  string
	AnthropicKeyEnv string
	Timeout         time.Duration
}

const defaultTimeout = 120 * time.Second

func (s Settings) timeout() time.Duration {
	if s.Timeout <= 0 {
		return defaultTimeout
	}
	return s.Timeout
}

// CreateProvider creates an LLM provider based on configuration. Ollama and
// Anthropic fall back to OpenAI when they are not usable. Returns nil when
// nothing is configured.
func CreateProvider(s Settings) Provider {
	switch strings.ToLower(s.Provider) {
	case "ollama":
		p := NewOllamaProvider(s.Model, s.OllamaURL, s.timeout())
		if p.IsConfigured() {
			slog.Info("using Ollama", slog.String("model", s.Model))
			return p
		}
		slog.Warn("Ollama not available, trying OpenAI fallback")
	case "anthropic":
		p := NewAnthropicProvider(s.AnthropicModel, s.AnthropicKeyEnv, s.timeout())
		if p.IsConfigured() {
			slog.Info("using Anthropic", slog.String("model", s.AnthropicModel))
			return p
		}
		slog.Warn("Anthropic key not set, trying OpenAI fallback", slog.String("env", s.AnthropicKeyEnv))
	}

	p := NewOpenAIProvider(s.OpenAIModel, s.APIKeyEnv, s.timeout())
	if p.IsConfigured() {
		slog.Info("using OpenAI", slog.String("model", s.OpenAIModel))
		return p
	}

	slog.Error("no LLM provider available; check Ollama is running or set an API key",
		slog.String("openai_key_env", s.APIKeyEnv))
	return nil
}
