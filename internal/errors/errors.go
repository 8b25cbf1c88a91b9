package errors

import (
	"errors"
	"fmt"
)

// SyncError is the structured error type for searchsync.
// It carries enough context to decide between aborting startup, retrying a
// tick, and skipping a single event.
type SyncError struct {
	// Code is the unique error code (e.g., "ERR_103_MAPPING_MISSING").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with SyncError.
func (e *SyncError) Is(target error) bool {
	if t, ok := target.(*SyncError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *SyncError) WithDetail(key, value string) *SyncError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *SyncError) WithSuggestion(suggestion string) *SyncError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SyncError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SyncError {
	return &SyncError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a SyncError with a formatted message and no cause.
func Newf(code string, format string, args ...any) *SyncError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a SyncError from an existing error.
// The error's message becomes the SyncError message.
func Wrap(code string, err error) *SyncError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SyncError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// MappingError creates an error for a missing id, event-type or entity mapping.
func MappingError(message string) *SyncError {
	return New(ErrCodeMappingMissing, message, nil)
}

// StateError creates an invalid-state error.
func StateError(message string) *SyncError {
	return New(ErrCodeInvalidState, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SyncError {
	return New(ErrCodeInternal, message, cause)
}

// Join combines several errors into one. Nil entries are dropped.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// as finds the first SyncError in err's chain.
func as(err error) (*SyncError, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains a SyncError with Retryable set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := as(err); ok {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort startup.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := as(err); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether err's chain contains a SyncError with code.
func HasCode(err error, code string) bool {
	return errors.Is(err, &SyncError{Code: code})
}

// GetCode extracts the error code from a SyncError.
// Returns empty string if not a SyncError.
func GetCode(err error) string {
	if se, ok := as(err); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SyncError.
// Returns empty string if not a SyncError.
func GetCategory(err error) Category {
	if se, ok := as(err); ok {
		return se.Category
	}
	return ""
}
