package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/ai"
)

const (
	// DefaultBaseURL is where a local Ollama server listens by default.
	DefaultBaseURL = "http://localhost:11434"

	chatEndpoint = "/api/chat"
	providerName = "ollama"
)

// ErrEmptyContent is returned when the response carries no message content.
var ErrEmptyContent = errors.New("ollama: response has no message content")

// Provider implements ai.Provider for the Ollama chat endpoint.
type Provider struct {
	baseURL string
	client  *http.Client
}

var _ ai.Provider = (*Provider)(nil)

// New creates a provider for the server at OLLAMA_HOST, or DefaultBaseURL.
func New() *Provider {
	baseURL := os.Getenv("OLLAMA_HOST")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		baseURL: NormalizeBaseURL(baseURL),
		client:  &http.Client{},
	}
}

// NormalizeBaseURL accepts the OLLAMA_HOST forms the ollama CLI accepts,
// such as "127.0.0.1:11434", and returns an http(s) URL without a trailing
// slash.
func NormalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// WithBaseURL sets the server URL.
func (p *Provider) WithBaseURL(baseURL string) *Provider {
	p.baseURL = NormalizeBaseURL(baseURL)
	return p
}

// WithHttpClient sets a custom HTTP client
func (p *Provider) WithHttpClient(httpClient *http.Client) *Provider {
	p.client = httpClient
	return p
}

// Name implements ai.Provider.
func (p *Provider) Name() string {
	return providerName
}

// BaseURL returns the configured server URL.
func (p *Provider) BaseURL() string {
	return p.baseURL
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []wireMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   json.RawMessage `json:"format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Message *struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// SendMessage posts the history to /api/chat with streaming disabled and
// returns message.content.
func (p *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	_, resp, err := utils.DoPostSync[chatResponse](ctx, p.client, p.baseURL+chatEndpoint, "", requestFromGeneric(request))
	if err != nil {
		return nil, fmt.Errorf("ollama: chat: %w", err)
	}
	if resp == nil || resp.Message == nil {
		return nil, ErrEmptyContent
	}

	return &ai.ChatResponse{
		Model:        resp.Model,
		Content:      resp.Message.Content,
		FinishReason: resp.DoneReason,
		Usage: &ai.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}, nil
}

func requestFromGeneric(request ai.ChatRequest) chatRequest {
	messages := make([]wireMessage, len(request.Messages))
	for i, msg := range request.Messages {
		messages[i] = wireMessage{Role: msg.Role.WireRole(), Content: msg.Content}
	}
	return chatRequest{
		Model:    request.Model,
		Messages: messages,
		Stream:   false,
		Format:   request.Format,
	}
}
