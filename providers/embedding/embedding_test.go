package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// TestOllama_Embed verifies the /api/embed request and response mapping.
func TestOllama_Embed(t *testing.T) {
	var captured ollamaEmbedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		fmt.Fprint(w, `{"embeddings":[[0.1,0.2],[0.3,0.4]]}`)
	}))
	defer server.Close()

	embedder := NewOllama(server.URL+"/", "").WithHttpClient(server.Client())
	vectors, err := embedder.Embed(context.Background(), []string{"body ache", "fever"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if captured.Model != DefaultOllamaModel || len(captured.Input) != 2 {
		t.Errorf("unexpected request: %+v", captured)
	}
	if len(vectors) != 2 || vectors[1][1] != 0.4 {
		t.Errorf("unexpected vectors: %v", vectors)
	}
}

// TestOllama_SchemelessBaseURL reaches a server given as host:port, the
// form OLLAMA_HOST commonly takes.
func TestOllama_SchemelessBaseURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embeddings":[[0.5,0.25]]}`)
	}))
	defer server.Close()

	embedder := NewOllama(strings.TrimPrefix(server.URL, "http://"), "m").WithHttpClient(server.Client())
	vectors, err := embedder.Embed(context.Background(), []string{"body ache"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 1 || vectors[0][0] != 0.5 {
		t.Errorf("unexpected vectors: %v", vectors)
	}
}

// TestOllama_CountMismatch verifies that a short response is rejected.
func TestOllama_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embeddings":[[0.1]]}`)
	}))
	defer server.Close()

	_, err := NewOllama(server.URL, "m").WithHttpClient(server.Client()).Embed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, ErrCountMismatch) {
		t.Fatalf("expected ErrCountMismatch, got %v", err)
	}
}

// TestOllama_EmptyInput verifies that no request is made for zero texts.
func TestOllama_EmptyInput(t *testing.T) {
	vectors, err := NewOllama("http://127.0.0.1:1", "m").Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Errorf("expected nil, nil; got %v, %v", vectors, err)
	}
}

// TestOpenRouter_Embed verifies ordering by index and float conversion.
func TestOpenRouter_Embed(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0.5,0.5]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	}))
	defer server.Close()

	client := openai.NewClient(option.WithAPIKey("k"), option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))
	vectors, err := NewOpenRouter(&client, "", 2).Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if captured["model"] != DefaultOpenRouterModel || captured["dimensions"] != float64(2) {
		t.Errorf("unexpected request: %v", captured)
	}
	if vectors[0][0] != 1 || vectors[1][0] != 0.5 {
		t.Errorf("expected vectors sorted by index, got %v", vectors)
	}
}

type fixedEmbedder struct {
	vectors [][]float32
	err     error
}

func (f fixedEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return f.vectors, f.err
}

// TestEmbedOne covers the single-text helper.
func TestEmbedOne(t *testing.T) {
	vector, err := EmbedOne(context.Background(), fixedEmbedder{vectors: [][]float32{{1, 2}}}, "x")
	if err != nil || len(vector) != 2 {
		t.Errorf("unexpected result %v, %v", vector, err)
	}

	if _, err := EmbedOne(context.Background(), fixedEmbedder{}, "x"); !errors.Is(err, ErrCountMismatch) {
		t.Errorf("expected ErrCountMismatch, got %v", err)
	}

	boom := errors.New("boom")
	if _, err := EmbedOne(context.Background(), fixedEmbedder{err: boom}, "x"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
