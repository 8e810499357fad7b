// internal/llm/openai/openai.go
package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/newthinker/prism/internal/llm"
)

const defaultModel = "gpt-4o"

// Provider implements the LLM interface for OpenAI and OpenAI-compatible endpoints.
type Provider struct {
	client *openai.Client
	model  string
}

// New creates a new OpenAI provider.
func New(opts llm.Options) (*Provider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("API key required")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Provider{client: openai.NewClientWithConfig(cfg), model: opts.Model}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Chat sends a chat request to the OpenAI API.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokensOrDefault(),
		Temperature: float32(req.Temperature),
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, llm.WrapError(fmt.Errorf("openai: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, llm.WrapError(fmt.Errorf("openai: response has no choices"))
	}

	choice := resp.Choices[0]
	return &llm.ChatResponse{
		Content: choice.Message.Content,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		FinishReason: string(choice.FinishReason),
	}, nil
}
