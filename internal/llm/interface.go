// Package llm abstracts the chat-completion providers used to draft
// strategy programs from plain-language descriptions.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/newthinker/prism/internal/core"
)

// Provider defines the interface for LLM providers
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest holds the request parameters
type ChatRequest struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
	JSONMode     bool
}

// Message represents a chat message
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// ChatResponse holds the response from the LLM
type ChatResponse struct {
	Content      string
	Usage        Usage
	FinishReason string
}

// Usage tracks token consumption
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Options configures a provider client. Empty fields take provider defaults.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// DefaultMaxTokens is used when a request leaves MaxTokens unset.
const DefaultMaxTokens = 2048

// MaxTokensOrDefault returns MaxTokens, or DefaultMaxTokens when unset.
func (r ChatRequest) MaxTokensOrDefault() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}

// WrapError classifies a provider failure as ErrLLMTimeout or ErrLLMFailed.
func WrapError(err error) *core.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.WrapError(core.ErrLLMTimeout, err)
	}
	return core.WrapError(core.ErrLLMFailed, err)
}
