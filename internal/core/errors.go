// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Detail returns the cause text, or the message when there is no cause.
func (e *Error) Detail() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps a formatted cause into base.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// AsError extracts a *Error from err. Anything else is reported as ErrInternal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return WrapError(ErrInternal, err)
}

// Predefined errors
var (
	// Data errors
	ErrSymbolNotFound = &Error{Code: "SYMBOL_NOT_FOUND", Message: "symbol not found"}
	ErrNoData         = &Error{Code: "NO_DATA", Message: "no data available"}

	// Collector errors
	ErrCollectorFailed  = &Error{Code: "COLLECTOR_FAILED", Message: "collector failed"}
	ErrCollectorTimeout = &Error{Code: "COLLECTOR_TIMEOUT", Message: "collector timeout"}

	// Backtest errors
	ErrValidation        = &Error{Code: "VALIDATION_ERROR", Message: "strategy rejected"}
	ErrCompile           = &Error{Code: "COMPILE_ERROR", Message: "strategy failed to compile"}
	ErrRuntime           = &Error{Code: "RUNTIME_ERROR", Message: "strategy failed at runtime"}
	ErrContractViolation = &Error{Code: "CONTRACT_VIOLATION", Message: "strategy output violates contract"}
	ErrTimeout           = &Error{Code: "TIMEOUT", Message: "strategy execution timed out"}
	ErrInsufficientData  = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient data for backtest"}
	ErrInternal          = &Error{Code: "INTERNAL_ERROR", Message: "internal error"}

	// Library errors
	ErrStrategyNotFound = &Error{Code: "STRATEGY_NOT_FOUND", Message: "strategy not found"}
	ErrJobNotFound      = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}

	// API errors
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}
	ErrBadRequest   = &Error{Code: "BAD_REQUEST", Message: "malformed request"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// LLM errors
	ErrLLMFailed        = &Error{Code: "LLM_FAILED", Message: "LLM request failed"}
	ErrLLMTimeout       = &Error{Code: "LLM_TIMEOUT", Message: "LLM request timeout"}
	ErrGenerationFailed = &Error{Code: "GENERATION_FAILED", Message: "strategy generation failed"}
)
