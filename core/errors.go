package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies engine errors for callers and audit records
type ErrorCategory string

const (
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryConfig     ErrorCategory = "config"
)

var (
	// ErrInvalidInput is matched by every ValidationError via errors.Is
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig is matched by every ConfigError via errors.Is
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrWatcherStopped is returned when a stopped watcher is started again
	ErrWatcherStopped = errors.New("watcher stopped")
)

// ValidationError reports a request the engine refuses to scan
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ErrorCategoryValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConfigError reports a rule source that cannot be used at all
type ConfigError struct {
	Source      string
	OriginalErr error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", ErrorCategoryConfig, e.Source, e.OriginalErr)
}

func (e *ConfigError) Unwrap() error {
	return e.OriginalErr
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}
