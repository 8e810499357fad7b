// internal/llm/ollama/ollama.go
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/newthinker/prism/internal/llm"
)

const (
	defaultEndpoint = "http://localhost:11434"
	defaultModel    = "qwen2.5:32b"
)

// Provider implements the LLM interface for a local Ollama server.
type Provider struct {
	endpoint string
	model    string
	client   *http.Client
}

// New creates a new Ollama provider. opts.BaseURL is the server endpoint.
func New(opts llm.Options) (*Provider, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultEndpoint
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute // local inference can be slow
	}
	return &Provider{
		endpoint: strings.TrimSuffix(opts.BaseURL, "/"),
		model:    opts.Model,
		client:   &http.Client{Timeout: opts.Timeout},
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ollama"
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  options   `json:"options,omitempty"`
	Format   string    `json:"format,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type options struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model           string  `json:"model"`
	Message         message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Chat sends a non-streaming request to /api/chat.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	messages := make([]message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, message{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, message{Role: m.Role, Content: m.Content})
	}

	body := chatRequest{
		Model:    p.model,
		Messages: messages,
		Options: options{
			NumPredict:  req.MaxTokensOrDefault(),
			Temperature: req.Temperature,
		},
	}
	if req.JSONMode {
		body.Format = "json"
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, llm.WrapError(fmt.Errorf("ollama: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, llm.WrapError(fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, llm.WrapError(fmt.Errorf("ollama: decoding response: %w", err))
	}
	if out.Error != "" {
		return nil, llm.WrapError(fmt.Errorf("ollama: %s", out.Error))
	}

	return &llm.ChatResponse{
		Content: out.Message.Content,
		Usage: llm.Usage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
		},
		FinishReason: out.DoneReason,
	}, nil
}
