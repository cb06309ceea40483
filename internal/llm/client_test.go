package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/memoirlabs/memoir/internal/config"
)

func TestNewClientAnthropic(t *testing.T) {
	cfg := config.OracleConfig{Provider: "anthropic", AnthropicKey: "test-key", Model: "claude-haiku-4-5-20251001"}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*Anthropic); !ok {
		t.Errorf("expected *Anthropic, got %T", client)
	}
}

func TestNewClientAnthropicMissingKey(t *testing.T) {
	cfg := config.OracleConfig{Provider: "anthropic"}
	_, err := NewClient(cfg)
	if err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestNewClientOllama(t *testing.T) {
	cfg := config.OracleConfig{Provider: "ollama", OllamaModel: "llama3.2"}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*Ollama); !ok {
		t.Errorf("expected *Ollama, got %T", client)
	}
}

func TestNewClientOllamaTimeoutFromConfig(t *testing.T) {
	cfg := config.OracleConfig{Provider: "ollama", TimeoutSecs: 7}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	o := client.(*Ollama)
	if o.client.Timeout != 7*time.Second {
		t.Errorf("timeout = %v, want 7s", o.client.Timeout)
	}
}

func TestNewClientOllamaDefaultTimeout(t *testing.T) {
	client, err := NewClient(config.OracleConfig{Provider: "ollama"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	o := client.(*Ollama)
	if o.client.Timeout != 120*time.Second {
		t.Errorf("timeout = %v, want 120s", o.client.Timeout)
	}
}

func TestOllamaCompleteParsesTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		fmt.Fprint(w, `{"response": "hello", "prompt_eval_count": 10, "eval_count": 5}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "llama3.2", 5*time.Second)
	resp, err := o.Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q, want %q", resp.Content, "hello")
	}
	if resp.TokensUsed != 15 {
		t.Errorf("tokens used = %d, want 15", resp.TokensUsed)
	}
	if resp.Provider != "ollama" {
		t.Errorf("provider = %q, want ollama", resp.Provider)
	}
}

func TestNewClientMock(t *testing.T) {
	client, err := NewClient(config.OracleConfig{Provider: "mock"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, ok := client.(*MockClient); !ok {
		t.Errorf("expected *MockClient, got %T", client)
	}
}

func TestNewClientUnknown(t *testing.T) {
	cfg := config.OracleConfig{Provider: "gpt"}
	_, err := NewClient(cfg)
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestMockClient(t *testing.T) {
	mock := &MockClient{
		Response: &Response{Content: "test response", Provider: "mock"},
	}

	resp, err := mock.Complete(context.Background(), "test prompt")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "test response" {
		t.Errorf("content = %q, want %q", resp.Content, "test response")
	}
	if len(mock.Calls) != 1 {
		t.Errorf("expected 1 call, got %d", len(mock.Calls))
	}
}

func TestMockClientQueuedResponses(t *testing.T) {
	mock := &MockClient{
		Responses: []*Response{
			{Content: "first"},
			{Content: "second"},
		},
		Response: &Response{Content: "fallback"},
	}

	for _, want := range []string{"first", "second", "fallback"} {
		resp, err := mock.Complete(context.Background(), "p")
		if err != nil {
			t.Fatal(err)
		}
		if resp.Content != want {
			t.Errorf("content = %q, want %q", resp.Content, want)
		}
	}
}
