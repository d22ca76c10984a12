package errors

import (
	stderrors "errors"
	"fmt"
)

// QuarryError is the structured error type for quarry.
// It provides rich context for error handling, logging, and user presentation.
type QuarryError struct {
	// Code is the unique error code (e.g., "ERR_201_STORAGE_WRITE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, Storage, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *QuarryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QuarryError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with QuarryError.
func (e *QuarryError) Is(target error) bool {
	if t, ok := target.(*QuarryError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *QuarryError) WithDetail(key, value string) *QuarryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *QuarryError) WithSuggestion(suggestion string) *QuarryError {
	e.Suggestion = suggestion
	return e
}

// New creates a new QuarryError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *QuarryError {
	return &QuarryError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a QuarryError from an existing error.
// The error's message becomes the QuarryError message.
func Wrap(code string, err error) *QuarryError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InvalidArgument creates a validation error for a rejected argument.
func InvalidArgument(message string) *QuarryError {
	return New(ErrCodeInvalidArgument, message, nil)
}

// UnknownMode creates a validation error for an unrecognized search mode.
func UnknownMode(mode string) *QuarryError {
	return New(ErrCodeUnknownMode, fmt.Sprintf("unknown search mode: %q", mode), nil).
		WithSuggestion("valid modes: lexical, vector, hybrid")
}

// ConfigInvalid creates a validation error for a rejected configuration value.
func ConfigInvalid(message string) *QuarryError {
	return New(ErrCodeConfigInvalid, message, nil)
}

// StorageWrite creates a storage error for a failed persistence write.
func StorageWrite(message string, cause error) *QuarryError {
	return New(ErrCodeStorageWrite, message, cause)
}

// StorageRead creates a storage error for a failed persistence read.
func StorageRead(message string, cause error) *QuarryError {
	return New(ErrCodeStorageRead, message, cause)
}

// StoreClosed creates a storage error for an operation on a closed store.
func StoreClosed(op string) *QuarryError {
	return New(ErrCodeStoreClosed, fmt.Sprintf("%s: store is closed", op), nil)
}

// DimensionMismatch creates an embedding error for inconsistent vector dimensions.
func DimensionMismatch(expected, got int) *QuarryError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", expected, got), nil).
		WithSuggestion("rebuild the indexes after changing the embedding model")
}

// Tokenization creates a tokenization error for a collaborator failure.
func Tokenization(documentID string, cause error) *QuarryError {
	return New(ErrCodeTokenization,
		fmt.Sprintf("tokenization failed for document %s", documentID), cause).
		WithDetail("document_id", documentID)
}

// Internal creates an internal error.
func Internal(message string, cause error) *QuarryError {
	return New(ErrCodeInternal, message, cause)
}

// IsInvalidArgument reports whether err is a validation error.
func IsInvalidArgument(err error) bool {
	return hasCategory(err, CategoryValidation)
}

// IsStorage reports whether err is a storage error.
func IsStorage(err error) bool {
	return hasCategory(err, CategoryStorage)
}

// IsDimensionMismatch reports whether err is a dimension mismatch error.
func IsDimensionMismatch(err error) bool {
	var qe *QuarryError
	return stderrors.As(err, &qe) && qe.Code == ErrCodeDimensionMismatch
}

// IsTokenization reports whether err is a tokenization error.
func IsTokenization(err error) bool {
	return hasCategory(err, CategoryTokenization)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a QuarryError with Retryable flag set.
func IsRetryable(err error) bool {
	var qe *QuarryError
	return stderrors.As(err, &qe) && qe.Retryable
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var qe *QuarryError
	return stderrors.As(err, &qe) && qe.Severity == SeverityFatal
}

// GetCode extracts the error code from a QuarryError anywhere in the chain.
// Returns empty string if the chain has no QuarryError.
func GetCode(err error) string {
	var qe *QuarryError
	if stderrors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// GetCategory extracts the category from a QuarryError anywhere in the chain.
// Returns empty string if the chain has no QuarryError.
func GetCategory(err error) Category {
	var qe *QuarryError
	if stderrors.As(err, &qe) {
		return qe.Category
	}
	return ""
}

func hasCategory(err error, cat Category) bool {
	var qe *QuarryError
	return stderrors.As(err, &qe) && qe.Category == cat
}
