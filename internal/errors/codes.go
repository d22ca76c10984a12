// Package errors provides structured error handling for quarry.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Validation errors (bad arguments, bad config)
//   - 2XX: Storage errors (corpus persistence, locks)
//   - 3XX: Embedding errors (collaborator and dimension problems)
//   - 4XX: Tokenization errors (collaborator failures)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryStorage indicates corpus persistence and lock errors.
	CategoryStorage Category = "STORAGE"
	// CategoryEmbedding indicates embedding collaborator errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryTokenization indicates tokenizer collaborator errors.
	CategoryTokenization Category = "TOKENIZATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Validation errors (100-199)
	ErrCodeInvalidArgument = "ERR_101_INVALID_ARGUMENT"
	ErrCodeUnknownMode     = "ERR_102_UNKNOWN_MODE"
	ErrCodeConfigInvalid   = "ERR_103_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageWrite = "ERR_201_STORAGE_WRITE"
	ErrCodeStorageRead  = "ERR_202_STORAGE_READ"
	ErrCodeStoreClosed  = "ERR_203_STORE_CLOSED"
	ErrCodeCorruptStore = "ERR_204_CORRUPT_STORE"
	ErrCodeLockHeld     = "ERR_205_LOCK_HELD"

	// Embedding errors (300-399)
	ErrCodeDimensionMismatch   = "ERR_301_DIMENSION_MISMATCH"
	ErrCodeEmbedderUnavailable = "ERR_302_EMBEDDER_UNAVAILABLE"

	// Tokenization errors (400-499)
	ErrCodeTokenization = "ERR_401_TOKENIZATION"

	// Internal errors (500-599)
	ErrCodeInternal   = "ERR_501_INTERNAL"
	ErrCodeIndexBuild = "ERR_502_INDEX_BUILD"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Leading digit of the numeric portion decides the category
	// (e.g., '2' in "ERR_201_STORAGE_WRITE").
	switch code[4] {
	case '1':
		return CategoryValidation
	case '2':
		return CategoryStorage
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryTokenization
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Fatal errors must be fixed before retry.
	switch code {
	case ErrCodeCorruptStore, ErrCodeDimensionMismatch:
		return SeverityFatal
	}

	// Tokenization failures are isolated per document during batch ingest.
	if code == ErrCodeTokenization {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStorageWrite, ErrCodeLockHeld, ErrCodeEmbedderUnavailable:
		return true
	default:
		return false
	}
}
