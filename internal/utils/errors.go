package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents an error occurring during data validation.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with a specific message.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// ConfigError reports settings that make a run impossible, such as a missing
// endpoint or credential. A run that hits one performs no processing.
type ConfigError struct {
	Missing []string
	Message string
}

// Error returns the error message string.
func (e *ConfigError) Error() string {
	if len(e.Missing) == 0 {
		return "configuration error: " + e.Message
	}
	if e.Message == "" {
		return "configuration error: missing " + strings.Join(e.Missing, ", ")
	}
	return fmt.Sprintf("configuration error: %s (missing %s)", e.Message, strings.Join(e.Missing, ", "))
}

// NewConfigError creates a ConfigError naming the missing settings.
func NewConfigError(message string, missing ...string) error {
	return &ConfigError{
		Message: message,
		Missing: missing,
	}
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
