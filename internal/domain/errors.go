package domain

import "errors"

// Common domain errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")
	ErrConflict       = errors.New("resource conflict")
	ErrInvalidInput   = errors.New("invalid input")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// ErrTransientStore marks database connection/contention failures that
	// the ingestion boundary converts to a soft 202.
	ErrTransientStore = errors.New("transient store failure")

	// ErrCircuitOpen is raised by the slack circuit breaker
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrStateStore marks notification state persistence failures; the
	// engine logs these and keeps operating on in-memory state.
	ErrStateStore = errors.New("notification state store failure")
)

// ValidationError contains field-level validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	return ve[0].Message
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}
