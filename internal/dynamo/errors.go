package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrConfiguration indicates invalid setup: layer counts, unmapped or
	// out-of-range layers, non-positive step size or worker count. Fatal at
	// the call site; never silently defaulted.
	ErrConfiguration = errors.New("dynamo: configuration error")

	// ErrUsage indicates an operation invoked on a body that cannot accept it,
	// such as an impulse on a static body or a kinematic move on a dynamic one.
	ErrUsage = errors.New("dynamo: usage error")

	// ErrInvalidState indicates a transform or velocity with NaN or Inf
	// components. Reported, never corrected.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrContextCanceled indicates the caller's context ended before a step began.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

// Configf wraps ErrConfiguration with a formatted detail message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Usagef wraps ErrUsage with a formatted detail message.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// BodyError wraps an error with the body and operation that produced it.
type BodyError struct {
	Body    uint32
	Op      string
	Wrapped error
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("%s body %d: %v", e.Op, e.Body, e.Wrapped)
}

func (e *BodyError) Unwrap() error {
	return e.Wrapped
}

// SimError reports a failure at a specific step.
type SimError struct {
	Time float64
	Step uint64
	Err  error
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Err)
}

func (e SimError) Unwrap() error {
	return e.Err
}
