// Package errors provides custom error types and error handling utilities.
package errors

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	// Problems detected before any query is processed.
	CodeConfig     = "CONFIG_ERROR"
	CodeValidation = "VALIDATION_ERROR"

	// Fatal run-level errors.
	CodeParse          = "PARSE_ERROR"
	CodeNonFiniteScore = "NON_FINITE_SCORE"
	CodeBackend        = "BACKEND_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// Process exit statuses.
const (
	ExitOK     = 0
	ExitFatal  = 1
	ExitConfig = 2
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ConfigError creates a configuration error.
func ConfigError(message string) *AppError {
	return New(CodeConfig, message)
}

// ConfigErrorf creates a configuration error with a formatted message.
func ConfigErrorf(format string, args ...any) *AppError {
	return New(CodeConfig, fmt.Sprintf(format, args...))
}

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// ParseError creates a query parse error.
func ParseError(message string, err error) *AppError {
	return Wrap(CodeParse, message, err)
}

// NonFiniteScoreError creates an error for a NaN or infinite rerank score.
func NonFiniteScoreError(stage, docID, queryID string) *AppError {
	return New(CodeNonFiniteScore, fmt.Sprintf("non-finite score encountered (%s reranker)", stage)).
		WithDetail("doc_id", docID).
		WithDetail("query_id", queryID)
}

// BackendError creates a retrieval or feature backend error.
func BackendError(message string, err error) *AppError {
	return Wrap(CodeBackend, message, err)
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsConfig checks if error is a configuration or validation error.
func IsConfig(err error) bool {
	return HasCode(err, CodeConfig) || HasCode(err, CodeValidation)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case IsConfig(err):
		return ExitConfig
	default:
		return ExitFatal
	}
}
