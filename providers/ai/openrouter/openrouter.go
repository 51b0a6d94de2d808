package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/leofalp/mule/providers/ai"
)

const (
	// DefaultBaseURL is the OpenAI-compatible OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// EnvAPIKey holds the bearer credential for the remote path.
	EnvAPIKey = "OPENROUTER_API_KEY"

	providerName = "openrouter"
	schemaName   = "response"
)

var (
	// ErrMissingAPIKey is returned by New when no credential is configured.
	// The remote path cannot degrade without one, so callers treat it as fatal.
	ErrMissingAPIKey = errors.New("openrouter: " + EnvAPIKey + " is not set")

	// ErrNoChoices is returned when the response carries no choices.
	ErrNoChoices = errors.New("openrouter: response has no choices")
)

// Provider implements ai.Provider against OpenRouter through the openai-go
// client.
type Provider struct {
	client  openai.Client
	baseURL string
}

var _ ai.Provider = (*Provider)(nil)

// Options configures New. Zero values fall back to the environment and defaults.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	// Title and Referer populate OpenRouter's attribution headers.
	Title   string
	Referer string
}

// New builds the remote provider. APIKey falls back to OPENROUTER_API_KEY;
// if both are empty it returns ErrMissingAPIKey.
func New(opts Options) (*Provider, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(EnvAPIKey)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	requestOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL + "/"),
		// one request per dispatch; retries are a middleware concern
		option.WithMaxRetries(0),
	}
	if opts.HTTPClient != nil {
		requestOptions = append(requestOptions, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Title != "" {
		requestOptions = append(requestOptions, option.WithHeader("X-Title", opts.Title))
	}
	if opts.Referer != "" {
		requestOptions = append(requestOptions, option.WithHeader("HTTP-Referer", opts.Referer))
	}

	return &Provider{
		client:  openai.NewClient(requestOptions...),
		baseURL: baseURL,
	}, nil
}

// Name implements ai.Provider.
func (p *Provider) Name() string {
	return providerName
}

// Client exposes the underlying openai-go client, which the embedding
// package reuses for /embeddings.
func (p *Provider) Client() *openai.Client {
	return &p.client
}

// SendMessage posts {model, messages} to /chat/completions and returns
// choices[0].message.content.
func (p *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	params, err := paramsFromGeneric(request)
	if err != nil {
		return nil, err
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openrouter: chat: status %d: %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("openrouter: chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, ErrNoChoices
	}

	choice := completion.Choices[0]
	return &ai.ChatResponse{
		Model:        completion.Model,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: &ai.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

func paramsFromGeneric(request ai.ChatRequest) (openai.ChatCompletionNewParams, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(request.Messages))
	for _, msg := range request.Messages {
		if msg.Role == ai.RoleSystem {
			messages = append(messages, openai.AssistantMessage(msg.Content))
			continue
		}
		messages = append(messages, openai.UserMessage(msg.Content))
	}

	params := openai.ChatCompletionNewParams{
		Model:    request.Model,
		Messages: messages,
	}

	if len(request.Format) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(request.Format, &schema); err != nil {
			return params, fmt.Errorf("openrouter: invalid output schema: %w", err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: schema,
				},
			},
		}
	}

	return params, nil
}
