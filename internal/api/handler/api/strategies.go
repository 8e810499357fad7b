// internal/api/handler/api/strategies.go
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/newthinker/prism/internal/api/response"
	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/library"
	"github.com/newthinker/prism/internal/strategy"
)

// StrategyLibrary is the strategy catalog plus custom store.
type StrategyLibrary interface {
	StrategySource
	List(ctx context.Context) ([]library.Entry, error)
	Save(ctx context.Context, name, description, code string) (string, error)
	Delete(ctx context.Context, key string) error
}

// SaveStrategyRequest is the request body for saving a custom strategy.
type SaveStrategyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code"`
}

// ValidateRequest is the request body for validating a program.
type ValidateRequest struct {
	Code string `json:"code"`
}

// ValidateResponse reports whether a program passed validation.
type ValidateResponse struct {
	Valid bool                  `json:"valid"`
	Error *response.ErrorDetail `json:"error,omitempty"`
}

// StrategyHandler handles strategy library requests.
type StrategyHandler struct {
	library StrategyLibrary
}

// NewStrategyHandler creates a new strategy handler.
func NewStrategyHandler(lib StrategyLibrary) *StrategyHandler {
	return &StrategyHandler{library: lib}
}

// List returns templates followed by custom strategies.
func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.library.List(r.Context())
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"strategies": entries,
		"count":      len(entries),
	})
}

// Get returns the strategy named by the {key} path value.
func (h *StrategyHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.library.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, entry)
}

// Save stores a custom strategy after validating its code.
func (h *StrategyHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}

	key, err := h.library.Save(r.Context(), req.Name, req.Description, req.Code)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]string{"key": key})
}

// Delete removes a custom strategy.
func (h *StrategyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.library.Delete(r.Context(), key); err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"key": key, "deleted": true})
}

// Validate checks a program without running it. A rejected program is still
// a 200 response with valid=false.
func (h *StrategyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}

	resp := ValidateResponse{Valid: true}
	if err := strategy.Validate(strategy.Program{Name: "validate", Source: req.Code}); err != nil {
		detail := response.Detail(err)
		resp = ValidateResponse{Error: &detail}
	}
	response.JSON(w, http.StatusOK, resp)
}
