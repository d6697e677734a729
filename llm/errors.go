package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCategory classifies backend failures for logs and report metadata
type ErrorCategory string

const (
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryAuthorization  ErrorCategory = "authorization"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryRateLimit      ErrorCategory = "rate_limit"
	ErrorCategorySystem         ErrorCategory = "system"
	ErrorCategoryTimeout        ErrorCategory = "timeout"
	ErrorCategoryNetwork        ErrorCategory = "network"
	ErrorCategoryModel          ErrorCategory = "model"
	ErrorCategoryConfig         ErrorCategory = "config"
)

// ErrBackendNotConfigured is returned when a provider is selected without its credentials
var ErrBackendNotConfigured = errors.New("backend not configured")

// BackendError wraps a model backend failure with its category
type BackendError struct {
	Category  ErrorCategory
	Backend   string
	Err       error
	RequestID string
	Timestamp time.Time
}

func (e *BackendError) Error() string {
	if e.RequestID == "" {
		return fmt.Sprintf("[%s] %s: %s", e.Category, e.Backend, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s: %s (request: %s)", e.Category, e.Backend, e.Err.Error(), e.RequestID)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// newBackendError creates a BackendError, deriving the category from err when none is given
func newBackendError(backend string, category ErrorCategory, err error, requestID string) *BackendError {
	if category == "" {
		category = categorizeError(err)
	}
	return &BackendError{
		Category:  category,
		Backend:   backend,
		Err:       err,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// categorizeError categorizes error based on error message
func categorizeError(err error) ErrorCategory {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrBackendNotConfigured) {
		return ErrorCategoryConfig
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "authentication") || strings.Contains(errStr, "401") {
		return ErrorCategoryAuthentication
	} else if strings.Contains(errStr, "permission") || strings.Contains(errStr, "access denied") || strings.Contains(errStr, "403") {
		return ErrorCategoryAuthorization
	} else if strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "too many requests") || strings.Contains(errStr, "429") {
		return ErrorCategoryRateLimit
	} else if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline") {
		return ErrorCategoryTimeout
	} else if strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") {
		return ErrorCategoryNetwork
	} else if strings.Contains(errStr, "invalid") || strings.Contains(errStr, "validation") {
		return ErrorCategoryValidation
	}

	return ErrorCategorySystem
}

// retryable reports whether another attempt could succeed
func retryable(err error) bool {
	switch categorizeError(err) {
	case ErrorCategoryAuthentication, ErrorCategoryAuthorization, ErrorCategoryConfig, ErrorCategoryValidation:
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
