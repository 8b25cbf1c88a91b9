// Package errors provides structured error handling for searchsync.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal at startup)
//   - 2XX: Storage errors (primary database, capture tables, cursors)
//   - 3XX: Network errors (index or notification endpoints)
//   - 4XX: Validation and state errors
//   - 5XX: Internal and dispatch errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates primary database and capture table errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation and invalid state errors.
	CategoryValidation Category = "VALIDATION"
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
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound       = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid        = "ERR_102_CONFIG_INVALID"
	ErrCodeMappingMissing       = "ERR_103_MAPPING_MISSING"
	ErrCodeEncoderMissing       = "ERR_104_ENCODER_MISSING"
	ErrCodeTriggerSourceUnknown = "ERR_105_TRIGGER_SOURCE_UNKNOWN"

	// Storage errors (200-299)
	ErrCodeDBUnavailable = "ERR_201_DB_UNAVAILABLE"
	ErrCodeCaptureRead   = "ERR_202_CAPTURE_READ"
	ErrCodeCursorWrite   = "ERR_203_CURSOR_WRITE"
	ErrCodeIndexCorrupt  = "ERR_204_INDEX_CORRUPT"

	// Network errors (300-399)
	ErrCodeIndexUnavailable = "ERR_301_INDEX_UNAVAILABLE"
	ErrCodeNotifyFailed     = "ERR_302_NOTIFY_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidState = "ERR_402_INVALID_STATE"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeDispatchFailed = "ERR_502_DISPATCH_FAILED"
	ErrCodeSnapshotFailed = "ERR_503_SNAPSHOT_FAILED"
	ErrCodeIndexFailed    = "ERR_504_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "101" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if categoryFromCode(code) == CategoryConfig {
		return SeverityFatal
	}
	if code == ErrCodeIndexCorrupt {
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode reports whether the next tick may succeed where this one failed.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeDBUnavailable, ErrCodeCaptureRead, ErrCodeCursorWrite,
		ErrCodeIndexUnavailable, ErrCodeNotifyFailed,
		ErrCodeDispatchFailed, ErrCodeSnapshotFailed, ErrCodeIndexFailed:
		return true
	default:
		return false
	}
}
