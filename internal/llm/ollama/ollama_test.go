// internal/llm/ollama/ollama_test.go
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/llm"
)

func TestProvider_ImplementsInterface(t *testing.T) {
	var _ llm.Provider = (*Provider)(nil)
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(llm.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.endpoint != defaultEndpoint {
		t.Errorf("expected default endpoint %s, got %s", defaultEndpoint, p.endpoint)
	}
	if p.model != defaultModel {
		t.Errorf("expected default model %s, got %s", defaultModel, p.model)
	}
}

func TestNew_CustomValues(t *testing.T) {
	p, err := New(llm.Options{BaseURL: "http://custom:8080/", Model: "llama3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.endpoint != "http://custom:8080" {
		t.Errorf("expected trimmed custom endpoint, got %s", p.endpoint)
	}
	if p.model != "llama3" {
		t.Errorf("expected custom model, got %s", p.model)
	}
}

func TestChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(chatResponse{
			Model:           "llama3",
			Message:         message{Role: "assistant", Content: `{"success": true}`},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 20,
			EvalCount:       8,
		})
	}))
	defer srv.Close()

	p, _ := New(llm.Options{BaseURL: srv.URL, Model: "llama3"})
	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		SystemPrompt: "sys",
		Messages:     []llm.Message{{Role: "user", Content: "hi"}},
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Content != `{"success": true}` || resp.FinishReason != "stop" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Usage.InputTokens != 20 || resp.Usage.OutputTokens != 8 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
	if got.Format != "json" || got.Stream {
		t.Errorf("unexpected request format=%q stream=%v", got.Format, got.Stream)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
	if got.Options.NumPredict != llm.DefaultMaxTokens {
		t.Errorf("expected num_predict %d, got %d", llm.DefaultMaxTokens, got.Options.NumPredict)
	}
}

func TestChat_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p, _ := New(llm.Options{BaseURL: srv.URL})
	_, err := p.Chat(context.Background(), llm.ChatRequest{})
	if !errors.Is(err, core.ErrLLMFailed) {
		t.Errorf("expected LLM_FAILED, got %v", err)
	}
}
