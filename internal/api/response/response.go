// internal/api/response/response.go
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/prism/internal/core"
)

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// statusByCode maps error codes to HTTP statuses. Unlisted codes are 500.
var statusByCode = map[string]int{
	core.ErrBadRequest.Code:        http.StatusBadRequest,
	core.ErrValidation.Code:        http.StatusBadRequest,
	core.ErrConfigInvalid.Code:     http.StatusBadRequest,
	core.ErrUnauthorized.Code:      http.StatusUnauthorized,
	core.ErrStrategyNotFound.Code:  http.StatusNotFound,
	core.ErrJobNotFound.Code:       http.StatusNotFound,
	core.ErrSymbolNotFound.Code:    http.StatusNotFound,
	core.ErrCompile.Code:           http.StatusUnprocessableEntity,
	core.ErrRuntime.Code:           http.StatusUnprocessableEntity,
	core.ErrContractViolation.Code: http.StatusUnprocessableEntity,
	core.ErrInsufficientData.Code:  http.StatusUnprocessableEntity,
	core.ErrNoData.Code:            http.StatusUnprocessableEntity,
	core.ErrCollectorFailed.Code:   http.StatusBadGateway,
	core.ErrLLMFailed.Code:         http.StatusBadGateway,
	core.ErrGenerationFailed.Code:  http.StatusBadGateway,
	core.ErrTimeout.Code:           http.StatusGatewayTimeout,
	core.ErrCollectorTimeout.Code:  http.StatusGatewayTimeout,
	core.ErrLLMTimeout.Code:        http.StatusGatewayTimeout,
	core.ErrConfigMissing.Code:     http.StatusServiceUnavailable,
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		if status, ok := statusByCode[coreErr.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// Detail renders err for a response body.
func Detail(err error) ErrorDetail {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		detail.Code = coreErr.Code
		detail.Message = coreErr.Message
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	}
	return detail
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	resp := SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: Detail(err)})
}

// Fail writes an error response with the status mapped from err's code.
func Fail(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err)
}
