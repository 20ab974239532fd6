package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeConcept represents concept normalization errors
	ErrorTypeConcept ErrorType = "concept"
	// ErrorTypeAlias represents alias table load/persist errors
	ErrorTypeAlias ErrorType = "alias"
	// ErrorTypeEmbedding represents embedding provider errors
	ErrorTypeEmbedding ErrorType = "embedding"
	// ErrorTypeProfile represents profile storage errors
	ErrorTypeProfile ErrorType = "profile"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Embedding errors

// ErrEmbeddingUnavailable is returned when the embedding provider could not
// be resolved; similarity resolution degrades to a no-op until retried.
var ErrEmbeddingUnavailable = NewBaseError(ErrorTypeEmbedding, "embedding provider unavailable", nil)

// Profile errors

// ErrProfileNotFound is returned when a (concept, user) profile row does not exist
type ErrProfileNotFound struct {
	*BaseError
	ConceptKey string
	UserID     string
}

func NewProfileNotFound(conceptKey, userID string) *ErrProfileNotFound {
	return &ErrProfileNotFound{
		BaseError:  NewBaseError(ErrorTypeProfile, fmt.Sprintf("profile not found: %s/%s", userID, conceptKey), nil),
		ConceptKey: conceptKey,
		UserID:     userID,
	}
}

// IsProfileNotFound reports whether err wraps an ErrProfileNotFound
func IsProfileNotFound(err error) bool {
	var notFound *ErrProfileNotFound
	return errors.As(err, &notFound)
}

// Alias errors

// ErrAliasPersist is returned when appending aliases could not be written to
// disk; the in-memory table is left untouched.
type ErrAliasPersist struct {
	*BaseError
	Path string
}

func NewAliasPersist(path string, err error) *ErrAliasPersist {
	return &ErrAliasPersist{
		BaseError: NewBaseError(ErrorTypeAlias, fmt.Sprintf("persisting aliases to %s", path), err),
		Path:      path,
	}
}
