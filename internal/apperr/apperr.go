// Package apperr defines the closed set of failures that the API boundary
// knows how to render. Any error that is not one of these types is treated as
// an internal failure and its message is never shown to clients.
package apperr

import (
	"strings"
)

// ValidationError reports malformed or out-of-policy input.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Fields, "; ")
}

// Validation returns a ValidationError with the given field messages.
func Validation(message string, fields ...string) *ValidationError {
	return &ValidationError{Message: message, Fields: fields}
}

// UnauthorizedError reports missing or invalid credentials.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string { return e.Reason }

// Unauthorized returns an UnauthorizedError with the given reason.
func Unauthorized(reason string) *UnauthorizedError {
	return &UnauthorizedError{Reason: reason}
}

// ForbiddenError reports an authenticated caller lacking the required role.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return e.Reason }

// Forbidden returns a ForbiddenError with the given reason.
func Forbidden(reason string) *ForbiddenError {
	return &ForbiddenError{Reason: reason}
}

// NotFoundError reports that one or more referenced entities do not exist.
// When IDs is non-empty they are listed in the message in the given order.
type NotFoundError struct {
	Resource string
	IDs      []string
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) == 0 {
		return e.Resource + " not found"
	}
	return e.Resource + " not found: " + strings.Join(e.IDs, ", ")
}

// NotFound returns a NotFoundError for resource, optionally naming ids.
func NotFound(resource string, ids ...string) *NotFoundError {
	return &NotFoundError{Resource: resource, IDs: ids}
}

// ConflictError reports a business-rule violation such as insufficient stock
// or a duplicate unique field.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// Conflict returns a ConflictError with the given reason.
func Conflict(reason string) *ConflictError {
	return &ConflictError{Reason: reason}
}
