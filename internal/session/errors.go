package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionDead is matched by every error that requires a full reconnect.
	ErrSessionDead = errors.New("session is dead")
	// ErrConnectExhausted is wrapped by Connect once all attempts failed.
	ErrConnectExhausted = errors.New("connect attempts exhausted")
)

// InitializationError means no compatible browser could be started. It is
// never retried.
type InitializationError struct {
	Err error
}

// Error implements the error interface.
func (e *InitializationError) Error() string {
	return fmt.Sprintf("browser initialization failed: %v", e.Err)
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *InitializationError) Unwrap() error { return e.Err }

// AuthTimeoutError means no logged-in indicator appeared before the deadline.
type AuthTimeoutError struct {
	Timeout time.Duration
}

// Error implements the error interface.
func (e *AuthTimeoutError) Error() string {
	return fmt.Sprintf("no login indicator within %v", e.Timeout)
}

// ConnectionError wraps network-class failures while opening the client.
type ConnectionError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *ConnectionError) Unwrap() error { return e.Err }

// DeadError reports why a session must be torn down. It matches
// ErrSessionDead under errors.Is.
type DeadError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *DeadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session dead: %s: %v", e.Reason, e.Err)
	}
	return "session dead: " + e.Reason
}

// Is reports whether target is ErrSessionDead.
func (e *DeadError) Is(target error) bool { return target == ErrSessionDead }

// Unwrap returns the underlying cause, if any.
func (e *DeadError) Unwrap() error { return e.Err }

// Dead builds a DeadError.
func Dead(reason string, err error) error {
	return &DeadError{Reason: reason, Err: err}
}
