package errors

import (
	stderrors "errors"
	"fmt"
)

// RAGError is the structured error type used across tradingrag.
// It carries enough context for logging and for CLI presentation.
type RAGError struct {
	// Code is the unique error code (e.g., "ERR_203_INDEX_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RAGError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RAGError) Unwrap() error {
	return e.Cause
}

// Is matches another RAGError by code, so errors.Is works against a template.
func (e *RAGError) Is(target error) bool {
	if t, ok := target.(*RAGError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *RAGError) WithDetail(key, value string) *RAGError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *RAGError) WithSuggestion(suggestion string) *RAGError {
	e.Suggestion = suggestion
	return e
}

// New creates a RAGError. Category, severity and retryability derive from the code.
func New(code string, message string, cause error) *RAGError {
	return &RAGError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RAGError from an existing error, reusing its message.
func Wrap(code string, err error) *RAGError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RAGError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a database or index file error.
func StorageError(message string, cause error) *RAGError {
	return New(ErrCodeDatabaseQuery, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *RAGError {
	return New(ErrCodeInvalidInput, message, cause)
}

// FromHTTPStatus maps a collaborator HTTP status to a RAGError.
// 429 and 5xx are retryable, everything else is a plain failure under fallback.
func FromHTTPStatus(status int, fallback string, message string) *RAGError {
	switch {
	case status == 429:
		return New(ErrCodeRateLimited, message, nil)
	case status == 408 || status == 504:
		return New(ErrCodeNetworkTimeout, message, nil)
	case status >= 500:
		return New(ErrCodeServiceUnavailable, message, nil)
	default:
		return New(fallback, message, nil)
	}
}

// IsRetryable checks if an error (or anything it wraps) is a retryable RAGError.
func IsRetryable(err error) bool {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" if err is not a RAGError.
func GetCode(err error) string {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetSuggestion returns the user-facing suggestion attached to err, if any.
func GetSuggestion(err error) string {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Suggestion
	}
	return ""
}
