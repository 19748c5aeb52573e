// Package errors provides the standardized error taxonomy for the affinity and presence engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeInvalidProfile     ErrorCode = "INVALID_PROFILE"
	ErrCodeInvalidDeclaration ErrorCode = "INVALID_DECLARATION"
	ErrCodeImmutableHistory   ErrorCode = "IMMUTABLE_HISTORY"

	ErrCodeAuth     ErrorCode = "AUTH_ERROR"
	ErrCodeProvider ErrorCode = "PROVIDER_ERROR"
	ErrCodeStore    ErrorCode = "STORE_ERROR"

	ErrCodeSync                ErrorCode = "SYNC_ERROR"
	ErrCodeSyncCancelled       ErrorCode = "SYNC_CANCELLED"
	ErrCodeSessionNotConnected ErrorCode = "SESSION_NOT_CONNECTED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches any StandardError carrying the same code, so the sentinels below work
// with errors.Is regardless of details.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrConfiguration       = &StandardError{Code: ErrCodeConfiguration}
	ErrInvalidProfile      = &StandardError{Code: ErrCodeInvalidProfile}
	ErrInvalidDeclaration  = &StandardError{Code: ErrCodeInvalidDeclaration}
	ErrImmutableHistory    = &StandardError{Code: ErrCodeImmutableHistory}
	ErrAuth                = &StandardError{Code: ErrCodeAuth}
	ErrProvider            = &StandardError{Code: ErrCodeProvider}
	ErrStore               = &StandardError{Code: ErrCodeStore}
	ErrSync                = &StandardError{Code: ErrCodeSync}
	ErrSyncCancelled       = &StandardError{Code: ErrCodeSyncCancelled}
	ErrSessionNotConnected = &StandardError{Code: ErrCodeSessionNotConnected}
)

// ==========================
// 2. Error Constructors
// ==========================

// NewConfigurationError creates a fatal configuration error. Callers must fix the
// configuration before retrying.
func NewConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfiguration,
		Message:   "Invalid configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidProfileError creates a non-retryable profile data error.
func NewInvalidProfileError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidProfile,
		Message:   "Invalid profile data",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidDeclarationError creates a non-retryable presence validation error.
func NewInvalidDeclarationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidDeclaration,
		Message:   "Invalid presence declaration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewImmutableHistoryError rejects attempts to alter presence for a past date.
func NewImmutableHistoryError(userID, day string) *StandardError {
	return &StandardError{
		Code:      ErrCodeImmutableHistory,
		Message:   "Presence history cannot be changed",
		Details:   fmt.Sprintf("userId: %s, date: %s", userID, day),
		Retryable: false,
		Metadata: map[string]interface{}{
			"userId": userID,
			"date":   day,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthError wraps a provider authentication failure.
func NewAuthError(provider string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuth,
		Message:   fmt.Sprintf("Authentication with '%s' failed", provider),
		Details:   errDetails(err),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewProviderError wraps a calendar provider failure. Transient failures (network,
// 5xx, rate limiting) should be created retryable.
func NewProviderError(provider string, retryable bool, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProvider,
		Message:   fmt.Sprintf("Calendar provider '%s' error", provider),
		Details:   errDetails(err),
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewStoreError wraps a presence persistence failure.
func NewStoreError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStore,
		Message:   fmt.Sprintf("Presence store operation '%s' failed", operation),
		Details:   errDetails(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewSyncError is the terminal error surfaced after the retry budget is exhausted.
func NewSyncError(key string, attempts int, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSync,
		Message:   "Calendar sync failed",
		Details:   fmt.Sprintf("key: %s, attempts: %d, error: %s", key, attempts, errDetails(err)),
		Retryable: false,
		Metadata: map[string]interface{}{
			"key":      key,
			"attempts": attempts,
		},
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewSyncCancelledError reports a sync attempt stopped by disconnect or caller cancellation.
func NewSyncCancelledError(key string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSyncCancelled,
		Message:   "Calendar sync cancelled",
		Details:   fmt.Sprintf("key: %s", key),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewSessionNotConnectedError is returned when a sync is requested without a session.
func NewSessionNotConnectedError(state string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotConnected,
		Message:   "Calendar session is not connected",
		Details:   fmt.Sprintf("state: %s", state),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func errDetails(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the attempt budget for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProvider, ErrCodeStore:
		return 5
	case ErrCodeSyncCancelled:
		return 1
	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsRetryable reports whether err is a StandardError flagged retryable.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// HasCode reports whether any StandardError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	for err != nil {
		if !stderrors.As(err, &stdErr) {
			return false
		}
		if stdErr.Code == code {
			return true
		}
		err = stdErr.Cause
	}
	return false
}

// CodeOf returns the outermost StandardError code in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONFIGURATION"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "HISTORY"):
		return "VALIDATION"
	case strings.Contains(codeStr, "AUTH") || strings.Contains(codeStr, "PROVIDER"):
		return "PROVIDER"
	case strings.Contains(codeStr, "STORE"):
		return "STORE"
	case strings.Contains(codeStr, "SYNC") || strings.Contains(codeStr, "SESSION"):
		return "SYNC"
	default:
		return "OTHER"
	}
}
