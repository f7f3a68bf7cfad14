package qf

import "fmt"

// AssertionError represents a violated framework invariant. Per spec it is
// fatal: it is only ever handed to the registered BSP's OnAssert hook (which
// must not return) and to the logger, never returned to an application
// caller.
type AssertionError struct {
	Module string
	Line   int
	Reason string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("qf: assertion failed in %s:%d: %s", e.Module, e.Line, e.Reason)
}

// WrapError wraps an error with a message and optional cause chain, in the
// same spirit as fmt.Errorf("%s: %w", ...) but named for call-site clarity
// at init-time failure paths (e.g. NewFileLogger opening its target file).
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
