package ollama

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

	"github.com/leofalp/mule/providers/ai"
)

// TestSendMessage_RequestShape verifies the endpoint, the body fields and the
// role mapping of the outgoing request.
func TestSendMessage_RequestShape(t *testing.T) {
	var captured map[string]any
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		fmt.Fprint(w, `{"model":"phi4-mini","message":{"role":"assistant","content":"Paris"},"done_reason":"stop","prompt_eval_count":12,"eval_count":3}`)
	}))
	defer server.Close()

	provider := New().WithBaseURL(server.URL + "/").WithHttpClient(server.Client())
	resp, err := provider.SendMessage(context.Background(), ai.ChatRequest{
		Model: "phi4-mini",
		Messages: []ai.Message{
			ai.NewUserMessage("capital of France?"),
			ai.NewSystemMessage("Paris"),
			{Role: ai.AgentRole("critic"), Content: "too short"},
		},
		Format: json.RawMessage(`{"type":"object"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if path != chatEndpoint {
		t.Errorf("expected path %s, got %s", chatEndpoint, path)
	}
	if captured["stream"] != false || captured["model"] != "phi4-mini" {
		t.Errorf("unexpected body: %v", captured)
	}
	if format, ok := captured["format"].(map[string]any); !ok || format["type"] != "object" {
		t.Errorf("expected format to be forwarded as JSON, got %v", captured["format"])
	}

	messages := captured["messages"].([]any)
	wantRoles := []string{"user", "assistant", "user"}
	for i, raw := range messages {
		if role := raw.(map[string]any)["role"]; role != wantRoles[i] {
			t.Errorf("message %d: expected role %s, got %v", i, wantRoles[i], role)
		}
	}

	if resp.Content != "Paris" || resp.FinishReason != "stop" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

// TestSendMessage_NoFormat verifies that an absent schema is not sent.
func TestSendMessage_NoFormat(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		fmt.Fprint(w, `{"message":{"content":"ok"}}`)
	}))
	defer server.Close()

	provider := New().WithBaseURL(server.URL).WithHttpClient(server.Client())
	if _, err := provider.SendMessage(context.Background(), ai.ChatRequest{Model: "m"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(body, `"format"`) {
		t.Errorf("expected no format field, got %s", body)
	}
}

// TestSendMessage_Failures covers the transport and parsing failure modes.
func TestSendMessage_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `model not found`, nil},
		{"missing message", http.StatusOK, `{"model":"m"}`, ErrEmptyContent},
		{"malformed json", http.StatusOK, `{"message":`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			provider := New().WithBaseURL(server.URL).WithHttpClient(server.Client())
			_, err := provider.SendMessage(context.Background(), ai.ChatRequest{Model: "m"})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestNew_BaseURLFromEnv covers OLLAMA_HOST with and without a scheme.
func TestNew_BaseURLFromEnv(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"", DefaultBaseURL},
		{"gpu-box:11434", "http://gpu-box:11434"},
		{"https://ollama.internal/", "https://ollama.internal"},
	}
	for _, tt := range tests {
		t.Setenv("OLLAMA_HOST", tt.env)
		if got := New().BaseURL(); got != tt.want {
			t.Errorf("OLLAMA_HOST=%q: BaseURL() = %q, want %q", tt.env, got, tt.want)
		}
	}
	if New().Name() != "ollama" {
		t.Error("unexpected provider name")
	}
}

// TestWithBaseURL_AddsScheme applies the same host:port handling as
// OLLAMA_HOST to explicitly configured URLs.
func TestWithBaseURL_AddsScheme(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:11434":         "http://127.0.0.1:11434",
		" gpu-box:11434/ ":        "http://gpu-box:11434",
		"http://localhost:11434/": "http://localhost:11434",
		"https://ollama.internal": "https://ollama.internal",
	}
	for in, want := range tests {
		if got := New().WithBaseURL(in).BaseURL(); got != want {
			t.Errorf("WithBaseURL(%q).BaseURL() = %q, want %q", in, got, want)
		}
	}
}

// TestSendMessage_SchemelessBaseURL reaches a server configured as
// host:port only.
func TestSendMessage_SchemelessBaseURL(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"pong"},"done":true}`))
	}))
	defer server.Close()

	hostPort := strings.TrimPrefix(server.URL, "http://")
	provider := New().WithBaseURL(hostPort).WithHttpClient(server.Client())
	resp, err := provider.SendMessage(context.Background(), ai.ChatRequest{
		Model:    "llama3",
		Messages: []ai.Message{ai.NewUserMessage("ping")},
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if resp.Content != "pong" || hits != 1 {
		t.Fatalf("content %q after %d requests", resp.Content, hits)
	}
}
