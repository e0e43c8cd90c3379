package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeBackend represents graph backend availability errors
	ErrorTypeBackend ErrorType = "backend"
	// ErrorTypeOperation represents failures while executing a store operation
	ErrorTypeOperation ErrorType = "operation"
	// ErrorTypeNotFound represents a missing entity referenced by a batch item
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeValidation represents malformed tool arguments
	ErrorTypeValidation ErrorType = "validation"
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

// Kind reports the error category. Typed errors embedding *BaseError inherit it.
func (e *BaseError) Kind() ErrorType {
	return e.Type
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

// Store Errors

// ErrBackendUnavailable is returned when the graph backend cannot serve a call
// (network, authentication, database down). Callers own the retry policy.
type ErrBackendUnavailable struct {
	*BaseError
	Operation string
}

func NewBackendUnavailable(operation string, err error) *ErrBackendUnavailable {
	return &ErrBackendUnavailable{
		BaseError: NewBaseError(ErrorTypeBackend, fmt.Sprintf("graph backend unavailable: %s", operation), err),
		Operation: operation,
	}
}

// ErrOperationFailed is returned for any other failure of a store operation
type ErrOperationFailed struct {
	*BaseError
	Operation string
}

func NewOperationFailed(operation string, err error) *ErrOperationFailed {
	return &ErrOperationFailed{
		BaseError: NewBaseError(ErrorTypeOperation, fmt.Sprintf("operation failed: %s", operation), err),
		Operation: operation,
	}
}

// ErrEntityNotFound is reported per item when a batch targets a missing entity
type ErrEntityNotFound struct {
	*BaseError
	EntityName string
}

func NewEntityNotFound(name string) *ErrEntityNotFound {
	return &ErrEntityNotFound{
		BaseError:  NewBaseError(ErrorTypeNotFound, fmt.Sprintf("entity not found: %s", name), nil),
		EntityName: name,
	}
}

// Tool Errors

// ErrInvalidArguments is returned when a tool payload fails binding or validation
type ErrInvalidArguments struct {
	*BaseError
	ToolName string
}

func NewInvalidArguments(toolName string, err error) *ErrInvalidArguments {
	return &ErrInvalidArguments{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid arguments for %s", toolName), err),
		ToolName:  toolName,
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

type kinded interface {
	Kind() ErrorType
}

// TypeOf returns the category of the outermost typed error in the chain
func TypeOf(err error) (ErrorType, bool) {
	var k kinded
	if stderrors.As(err, &k) {
		return k.Kind(), true
	}
	return "", false
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}

// IsBackendUnavailable reports whether err is a backend availability failure
func IsBackendUnavailable(err error) bool {
	var target *ErrBackendUnavailable
	return stderrors.As(err, &target)
}

// IsNotFound reports whether err is a missing-entity failure
func IsNotFound(err error) bool {
	var target *ErrEntityNotFound
	return stderrors.As(err, &target)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Only availability failures are worth retrying; the same write against
	// a reachable backend fails the same way again.
	return IsErrorType(err, ErrorTypeBackend)
}
