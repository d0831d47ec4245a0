package dispatch

import "fmt"

// ValidationError rejects user input. Reply is the localized text sent back.
type ValidationError struct {
	Field string
	Value string
	Reply string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// HandlerError wraps a failure inside a command handler, including panics.
type HandlerError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *HandlerError) Unwrap() error { return e.Err }
