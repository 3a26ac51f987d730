package errors

import (
	"errors"
	"fmt"
)

// AuthenticationError represents a failed login against a panel server
type AuthenticationError struct {
	ServerID uint
	Message  string
}

// Error returns the error message
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for server %d: %s", e.ServerID, e.Message)
}

// RemoteCallError represents a remote call that failed after retries were exhausted
type RemoteCallError struct {
	ServerID  uint
	Operation string
	Attempts  int
	Err       error
}

// Error returns the error message
func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("remote call %s failed on server %d after %d attempts: %v", e.Operation, e.ServerID, e.Attempts, e.Err)
}

// Unwrap returns the last underlying cause
func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

// RemoteRejectedError represents a structured failure returned by the panel
type RemoteRejectedError struct {
	Operation string
	Message   string
}

// Error returns the error message
func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("panel rejected %s: %s", e.Operation, e.Message)
}

// NotFoundError represents a referenced server, inbound or client that does not exist
type NotFoundError struct {
	Kind string
	Key  string
}

// Error returns the error message
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// PersistenceError represents a local transaction failure
type PersistenceError struct {
	Operation string
	Err       error
}

// Error returns the error message
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying database error
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsAuthentication reports whether err is an AuthenticationError
func IsAuthentication(err error) bool {
	var target *AuthenticationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsRemoteRejected reports whether err is a RemoteRejectedError
func IsRemoteRejected(err error) bool {
	var target *RemoteRejectedError
	return errors.As(err, &target)
}
