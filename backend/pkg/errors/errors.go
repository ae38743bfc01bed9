package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeExtraction represents entity/topic extraction errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeStorage represents graph database errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeGeneration represents LLM generation errors
	ErrorTypeGeneration ErrorType = "generation"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
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

// Base exposes the BaseError itself. Typed errors embed *BaseError,
// so this promotes through and lets IsErrorType see their category.
func (e *BaseError) Base() *BaseError {
	return e
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

// Extraction Errors

// ErrExtractionFailed is returned when the NER service cannot produce
// entities for a message. Extraction is a hard dependency: callers
// abort the turn rather than degrade.
type ErrExtractionFailed struct {
	*BaseError
	Message string
}

func NewExtractionFailed(message string, err error) *ErrExtractionFailed {
	return &ErrExtractionFailed{
		BaseError: NewBaseError(ErrorTypeExtraction, "entity extraction failed", err),
		Message:   message,
	}
}

// ErrVocabularyLoadFailed is returned when the topic vocabulary file
// cannot be read or parsed
type ErrVocabularyLoadFailed struct {
	*BaseError
	Path string
}

func NewVocabularyLoadFailed(path string, err error) *ErrVocabularyLoadFailed {
	return &ErrVocabularyLoadFailed{
		BaseError: NewBaseError(ErrorTypeExtraction, fmt.Sprintf("failed to load topic vocabulary: %s", path), err),
		Path:      path,
	}
}

// Storage Errors

// ErrStorageConnectionFailed is returned when Neo4j connection fails
type ErrStorageConnectionFailed struct {
	*BaseError
	URI string
}

func NewStorageConnectionFailed(uri string, err error) *ErrStorageConnectionFailed {
	return &ErrStorageConnectionFailed{
		BaseError: NewBaseError(ErrorTypeStorage, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrStorageWriteFailed is returned when recording an interaction in
// the graph fails
type ErrStorageWriteFailed struct {
	*BaseError
	UserID string
}

func NewStorageWriteFailed(userID string, err error) *ErrStorageWriteFailed {
	return &ErrStorageWriteFailed{
		BaseError: NewBaseError(ErrorTypeStorage, fmt.Sprintf("failed to record interaction for user: %s", userID), err),
		UserID:    userID,
	}
}

// ErrStorageReadFailed is returned when a retrieval query fails
type ErrStorageReadFailed struct {
	*BaseError
	UserID string
}

func NewStorageReadFailed(userID string, err error) *ErrStorageReadFailed {
	return &ErrStorageReadFailed{
		BaseError: NewBaseError(ErrorTypeStorage, fmt.Sprintf("failed to retrieve context for user: %s", userID), err),
		UserID:    userID,
	}
}

// Generation Errors

// ErrGenerationFailed is returned when an LLM request fails
type ErrGenerationFailed struct {
	*BaseError
	Model     string
	Attempts  int
	Retryable bool
}

func NewGenerationFailed(model string, attempts int, retryable bool, err error) *ErrGenerationFailed {
	return &ErrGenerationFailed{
		BaseError: NewBaseError(ErrorTypeGeneration, fmt.Sprintf("LLM request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
		Retryable: retryable,
	}
}

// ErrGenerationEmpty is returned when the LLM returns no choices
var ErrGenerationEmpty = NewBaseError(ErrorTypeGeneration, "no response from LLM", nil)

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	if typed, ok := err.(interface{ Base() *BaseError }); ok {
		return typed.Base().Type == errType
	}
	// Check wrapped errors
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		return IsErrorType(wrapped.Unwrap(), errType)
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Context errors are not retryable
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	if genErr, ok := err.(*ErrGenerationFailed); ok {
		return genErr.Retryable
	}
	// Storage errors are retryable; transient Neo4j failures
	// usually clear on the next attempt
	if IsErrorType(err, ErrorTypeStorage) {
		return true
	}
	return false
}
