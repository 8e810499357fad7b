// internal/llm/factory/factory.go
package factory

import (
	"fmt"

	"github.com/newthinker/prism/internal/config"
	"github.com/newthinker/prism/internal/llm"
	"github.com/newthinker/prism/internal/llm/claude"
	"github.com/newthinker/prism/internal/llm/ollama"
	"github.com/newthinker/prism/internal/llm/openai"
)

// New creates an LLM provider based on configuration. It returns nil and no
// error when no provider is configured.
func New(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "claude":
		return claude.New(llm.Options{
			APIKey:  cfg.Claude.APIKey,
			Model:   cfg.Claude.Model,
			BaseURL: cfg.Claude.BaseURL,
			Timeout: cfg.Timeout,
		})
	case "openai":
		return openai.New(llm.Options{
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.OpenAI.Model,
			BaseURL: cfg.OpenAI.BaseURL,
			Timeout: cfg.Timeout,
		})
	case "ollama":
		return ollama.New(llm.Options{
			BaseURL: cfg.Ollama.Endpoint,
			Model:   cfg.Ollama.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
