package llm

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAIProvider calls the OpenAI Responses API.
type OpenAIProvider struct {
	Model  string
	APIKey string
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider reading its key from
// apiKeyEnv. Retries are disabled so rate limits surface to the caller.
func NewOpenAIProvider(model, apiKeyEnv string, timeout time.Duration) *OpenAIProvider {
	p := &OpenAIProvider{Model: model, APIKey: os.Getenv(apiKeyEnv)}
	if p.APIKey != "" {
		client := openai.NewClient(
			option.WithAPIKey(p.APIKey),
			option.WithRequestTimeout(timeout),
			option.WithMaxRetries(0),
		)
		p.client = &client
	}
	return p
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != "" && o.client != nil
}

// Generate sends a prompt to OpenAI and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return o.send(ctx, o.params(prompt, maxTokens))
}

// GenerateStructured requests strict JSON output matching schema.
func (o *OpenAIProvider) GenerateStructured(ctx context.Context, prompt string, schema Schema, maxTokens int) (string, error) {
	params := o.params(prompt, maxTokens)
	params.Text = responses.ResponseTextConfigParam{
		Format: responses.ResponseFormatTextConfigUnionParam{
			OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
				Name:        schema.Name,
				Schema:      schema.Definition,
				Strict:      openai.Bool(true),
				Description: openai.String(schema.Description),
				Type:        "json_schema",
			},
		},
	}
	return o.send(ctx, params)
}

func (o *OpenAIProvider) params(prompt string, maxTokens int) responses.ResponseNewParams {
	return responses.ResponseNewParams{
		Model:           o.Model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}
}

func (o *OpenAIProvider) send(ctx context.Context, params responses.ResponseNewParams) (string, error) {
	if !o.IsConfigured() {
		return "", errors.New("OpenAI API key not configured")
	}
	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}
	text := resp.OutputText()
	if text == "" {
		return "", errors.New("empty OpenAI response")
	}
	return text, nil
}
