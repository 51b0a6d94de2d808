package embedding

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
)

// DefaultOpenRouterModel is the embedding model used when none is configured.
const DefaultOpenRouterModel = "openai/text-embedding-3-small"

// OpenRouter embeds through the OpenAI-compatible /embeddings endpoint,
// reusing the client built by the openrouter provider.
type OpenRouter struct {
	client     *openai.Client
	model      string
	dimensions int64
}

var _ Embedder = (*OpenRouter)(nil)

// NewOpenRouter creates an embedder. A positive dimensions value asks the
// model for vectors of that size.
func NewOpenRouter(client *openai.Client, model string, dimensions int) *OpenRouter {
	if model == "" {
		model = DefaultOpenRouterModel
	}
	return &OpenRouter{client: client, model: model, dimensions: int64(dimensions)}
}

// Embed implements Embedder.
func (o *OpenRouter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Model: o.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if o.dimensions > 0 {
		params.Dimensions = openai.Int(o.dimensions)
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embedding: openrouter: %w", err)
	}
	if err := checkCount(len(resp.Data), len(texts)); err != nil {
		return nil, err
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, item := range data {
		vector := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vector[j] = float32(v)
		}
		vectors[i] = vector
	}
	return vectors, nil
}
