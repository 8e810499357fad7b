// internal/api/handler/api/generate.go
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/newthinker/prism/internal/api/response"
	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/generator"
)

// StrategyGenerator drafts programs from descriptions.
type StrategyGenerator interface {
	Available() bool
	Generate(ctx context.Context, description string) (*generator.Result, error)
}

// GenerateRequest is the request body for strategy generation.
type GenerateRequest struct {
	Description string `json:"description"`
}

// GenerateHandler handles strategy generation requests.
type GenerateHandler struct {
	generator StrategyGenerator
}

// NewGenerateHandler creates a new generate handler.
func NewGenerateHandler(g StrategyGenerator) *GenerateHandler {
	return &GenerateHandler{generator: g}
}

// Generate returns a validated program for the described strategy.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil || !h.generator.Available() {
		response.Fail(w, core.Errorf(core.ErrConfigMissing, "no LLM provider configured"))
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}

	result, err := h.generator.Generate(r.Context(), req.Description)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}
