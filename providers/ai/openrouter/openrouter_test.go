package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leofalp/mule/providers/ai"
)

const completionBody = `{
  "id": "gen-1",
  "object": "chat.completion",
  "created": 1,
  "model": "deepseek/deepseek-chat",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "42"}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
}`

// TestNew_MissingAPIKey verifies the configuration error for an absent key.
func TestNew_MissingAPIKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	_, err := New(Options{})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

// TestNew_APIKeyFromEnv verifies the environment fallback.
func TestNew_APIKeyFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-or-env")
	provider, err := New(Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "openrouter" || provider.Client() == nil {
		t.Errorf("unexpected provider: %+v", provider)
	}
}

// TestSendMessage_Success verifies the request shape and response mapping.
func TestSendMessage_Success(t *testing.T) {
	var captured map[string]any
	var auth, title, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		title = r.Header.Get("X-Title")
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody)
	}))
	defer server.Close()

	provider, err := New(Options{APIKey: "sk-or-1", BaseURL: server.URL, HTTPClient: server.Client(), Title: "mule"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := provider.SendMessage(context.Background(), ai.ChatRequest{
		Model:    "deepseek/deepseek-chat",
		Messages: []ai.Message{ai.NewUserMessage("q"), ai.NewSystemMessage("a"), ai.NewUserMessage("again")},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if auth != "Bearer sk-or-1" || title != "mule" {
		t.Errorf("unexpected headers: auth=%q title=%q", auth, title)
	}
	if path != "/chat/completions" {
		t.Errorf("unexpected path %q", path)
	}
	if captured["model"] != "deepseek/deepseek-chat" {
		t.Errorf("unexpected model: %v", captured["model"])
	}
	if _, ok := captured["response_format"]; ok {
		t.Errorf("expected no response_format without a schema")
	}
	messages := captured["messages"].([]any)
	if len(messages) != 3 || messages[1].(map[string]any)["role"] != "assistant" {
		t.Errorf("unexpected messages: %v", messages)
	}

	if resp.Content != "42" || resp.FinishReason != "stop" || resp.Usage.TotalTokens != 12 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

// TestSendMessage_Schema verifies that an output schema becomes a
// json_schema response format.
func TestSendMessage_Schema(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionBody)
	}))
	defer server.Close()

	provider, _ := New(Options{APIKey: "k", BaseURL: server.URL, HTTPClient: server.Client()})
	_, err := provider.SendMessage(context.Background(), ai.ChatRequest{
		Model:    "m",
		Messages: []ai.Message{ai.NewUserMessage("classify")},
		Format:   json.RawMessage(`{"type":"object","properties":{"result":{"type":"number"}}}`),
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	format, ok := captured["response_format"].(map[string]any)
	if !ok || format["type"] != "json_schema" {
		t.Fatalf("expected json_schema response format, got %v", captured["response_format"])
	}
	schema := format["json_schema"].(map[string]any)
	if schema["name"] != schemaName || schema["schema"] == nil {
		t.Errorf("unexpected json_schema: %v", schema)
	}
}

// TestSendMessage_InvalidSchema verifies that a malformed schema is rejected
// before any request is sent.
func TestSendMessage_InvalidSchema(t *testing.T) {
	provider, _ := New(Options{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	_, err := provider.SendMessage(context.Background(), ai.ChatRequest{Model: "m", Format: json.RawMessage(`{`)})
	if err == nil {
		t.Fatal("expected error for malformed schema")
	}
}

// TestSendMessage_Failures covers API errors and empty choices.
func TestSendMessage_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","code":"401"}}`, nil},
		{"no choices", http.StatusOK, `{"id":"x","model":"m","choices":[]}`, ErrNoChoices},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			provider, _ := New(Options{APIKey: "k", BaseURL: server.URL, HTTPClient: server.Client()})
			_, err := provider.SendMessage(context.Background(), ai.ChatRequest{Model: "m", Messages: []ai.Message{ai.NewUserMessage("q")}})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
