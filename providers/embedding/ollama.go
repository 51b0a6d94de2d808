package embedding

import (
	"context"
	"fmt"
	"net/http"

	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/ai/ollama"
)

// DefaultOllamaModel is the embedding model used when none is configured.
const DefaultOllamaModel = "nomic-embed-text"

// Ollama embeds through a local Ollama server's /api/embed endpoint.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

var _ Embedder = (*Ollama)(nil)

// NewOllama creates an embedder for the server at baseURL, which may omit
// the scheme.
func NewOllama(baseURL, model string) *Ollama {
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{
		baseURL: ollama.NormalizeBaseURL(baseURL),
		model:   model,
		client:  &http.Client{},
	}
}

// WithHttpClient sets a custom HTTP client
func (o *Ollama) WithHttpClient(client *http.Client) *Ollama {
	o.client = client
	return o
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements Embedder.
func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	_, resp, err := utils.DoPostSync[ollamaEmbedResponse](ctx, o.client, o.baseURL+"/api/embed", "",
		ollamaEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding: ollama: %w", err)
	}
	if err := checkCount(len(resp.Embeddings), len(texts)); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}
