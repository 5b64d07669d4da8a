package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across discovery, command building and supervision.
var (
	// ErrInvalidSpec is returned when a capture spec is malformed. No process is launched.
	ErrInvalidSpec = errors.New("invalid capture spec")

	// ErrLaunchFailure is returned when the FFmpeg process could not be started.
	ErrLaunchFailure = errors.New("failed to launch ffmpeg")

	// ErrDiscovery is returned when a discovery command wrote diagnostics instead of data.
	ErrDiscovery = errors.New("discovery command failed")

	// ErrUnsupportedOutput is returned when a discovery command's output has an unexpected shape.
	ErrUnsupportedOutput = errors.New("unsupported command output")
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field (e.g., "video_size")
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects multiple field validation errors.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{
		Errors: make([]FieldError, 0),
	}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, e := range v.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrInvalidSpec.
func (v *ValidationError) Unwrap() error {
	return ErrInvalidSpec
}
