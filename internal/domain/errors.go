// Package domain defines core types, interfaces, and errors for the
// sensor-network identity and ingestion core.
package domain

import "fmt"

// ValidationError indicates malformed input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// DuplicateError indicates a unique-constraint violation (e.g. email reuse).
type DuplicateError struct {
	Message string
}

func (e *DuplicateError) Error() string { return e.Message }

// AuthorizationError indicates a missing permission or geographic scope.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return e.Message }

// NotFoundError indicates a record was not found in its owning store.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// SyncError indicates the graph mirror failed after the document-store write
// succeeded. For registration the compensating delete has already been applied
// when this error is returned.
type SyncError struct {
	Message string
	Cause   error
}

func (e *SyncError) Error() string { return e.Message }

func (e *SyncError) Unwrap() error { return e.Cause }

// RollbackError is terminal: the graph mirror failed and the compensating
// delete of the document-store record failed too, leaving an orphaned record
// that requires operator intervention.
type RollbackError struct {
	PrincipalID string
	SyncCause   error
	DeleteCause error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("principal %s orphaned in document store: mirror failed (%v), compensating delete failed (%v)",
		e.PrincipalID, e.SyncCause, e.DeleteCause)
}

// StorageError indicates an undifferentiated backing-store failure.
type StorageError struct {
	Message string
	Cause   error
}

func (e *StorageError) Error() string { return e.Message }

func (e *StorageError) Unwrap() error { return e.Cause }

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrDuplicate creates a DuplicateError with a formatted message.
func ErrDuplicate(format string, args ...interface{}) *DuplicateError {
	return &DuplicateError{Message: fmt.Sprintf(format, args...)}
}

// ErrAuthorization creates an AuthorizationError with a formatted message.
func ErrAuthorization(format string, args ...interface{}) *AuthorizationError {
	return &AuthorizationError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrSync wraps a graph-mirror failure.
func ErrSync(cause error, format string, args ...interface{}) *SyncError {
	return &SyncError{Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ErrStorage wraps a backing-store failure.
func ErrStorage(cause error, format string, args ...interface{}) *StorageError {
	return &StorageError{Message: fmt.Sprintf(format, args...), Cause: cause}
}
