// Package errors provides the error types shared by the pimsync packages.
// Typed errors implement Is so callers can match them against the sentinels
// with errors.Is.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// New is an alias for the standard library errors.New.
var New = errors.New

// Is, As and Unwrap re-export the standard helpers so callers only import one package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

var (
	// ErrNotFound indicates that a requested record was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate business key or field name
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that the remote API kept answering 429
	ErrRateLimited = errors.New("rate limited")

	// ErrCredentialsMissing indicates that no remote access token is configured
	ErrCredentialsMissing = errors.New("remote credentials not configured")

	// ErrLiveSyncDisabled indicates a remote operation was requested while live sync is off
	ErrLiveSyncDisabled = errors.New("live sync disabled")

	// ErrJobInProgress indicates another sync job holds the collection lock
	ErrJobInProgress = errors.New("another sync job is in progress")
)

// APIError is a non-2xx response from the remote catalog API.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("shopify API error during %s (status %d): %s", e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("shopify API error (status %d): %s", e.StatusCode, e.Body)
}

// Is maps status codes onto the sentinels.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return target == ErrRateLimited
	case http.StatusNotFound:
		return target == ErrNotFound
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(operation string, statusCode int, body string) *APIError {
	return &APIError{Operation: operation, StatusCode: statusCode, Body: body}
}

// NotFoundError represents a missing record or field
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// DuplicateError is returned when a business key or field name is already taken
type DuplicateError struct {
	Key   string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s: %q already exists", e.Key, e.Value)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// NewDuplicateError creates a new DuplicateError
func NewDuplicateError(key, value string) *DuplicateError {
	return &DuplicateError{Key: key, Value: value}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
