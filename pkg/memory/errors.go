package memory

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrEmptyOwner indicates that an operation was called without an owner id.
	ErrEmptyOwner = errors.New("owner id must not be empty")

	// ErrEmbeddingFailed indicates that embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrIndexOperation indicates that an index operation failed.
	ErrIndexOperation = errors.New("index operation failed")
)

// StoreError wraps errors with operation context.
//
// It provides the name of the operation that failed, making error messages
// more informative for debugging. errors.Is and errors.As see through it.
type StoreError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message: "memkeep: <Op>: <Err>".
func (e *StoreError) Error() string {
	return fmt.Sprintf("memkeep: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError wrapping the given error.
// If err is nil, returns nil, which allows safe wrapping at return sites.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
