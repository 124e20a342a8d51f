package executor

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrCancelled is reported for tasks that were cancelled before finishing,
	// e.g. because their owning [Scope] was torn down.
	ErrCancelled = errors.New("executor: task cancelled")

	// ErrExecutorClosed is returned when a run is interrupted by
	// [Executor.Close], and is the value of logic-error panics caused by use
	// after teardown.
	ErrExecutorClosed = errors.New("executor: executor has been closed")

	// ErrTimedOut is returned by [Port.Wait] when no packet arrived before the
	// timeout elapsed.
	ErrTimedOut = errors.New("executor: wait timed out")

	// ErrPortClosed is returned by [Port] operations after [Port.Close].
	ErrPortClosed = errors.New("executor: port closed")

	// ErrAlreadyRunning is the cause of the logic-error panic raised when an
	// executor is run while a previous run is still active, or when a send
	// executor is run a second time.
	ErrAlreadyRunning = errors.New("executor: executor is already running")
)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	// Value is the value passed to panic.
	Value any
	// TaskID identifies the task that panicked.
	TaskID TaskID
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("executor: task %d panicked: %v", e.TaskID, e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type.
// This enables use with [errors.Is] and [errors.As].
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// LogicError is the value of panics raised for programming errors, such as
// deregistering an unknown receiver key or nesting executors on one
// goroutine. These cannot be safely continued from.
type LogicError struct {
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *LogicError) Error() string {
	if e.Cause != nil {
		return "executor: " + e.Message + ": " + e.Cause.Error()
	}
	return "executor: " + e.Message
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *LogicError) Unwrap() error {
	return e.Cause
}

// logicPanic panics with a *LogicError.
func logicPanic(cause error, format string, args ...any) {
	panic(&LogicError{Cause: cause, Message: fmt.Sprintf(format, args...)})
}
