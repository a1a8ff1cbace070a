// Package errors provides error aggregation and panic recovery helpers
// shared across taskwright components.
package errors

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// MultiError collects multiple errors into a single error value.
// Useful during shutdown where every component gets a chance to fail.
type MultiError struct {
	Errors []error
}

// Append adds an error to the collection. Nil errors are ignored.
func (m *MultiError) Append(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// ErrorOrNil returns nil if no errors were collected, the single error if
// exactly one was collected, and the MultiError itself otherwise.
func (m *MultiError) ErrorOrNil() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d errors occurred: %s", len(m.Errors), strings.Join(msgs, "; "))
}

// Unwrap returns the collected errors for errors.Is/As traversal.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// PanicError wraps a recovered panic with its stack trace.
type PanicError struct {
	Value      any
	StackTrace string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Recover runs fn and converts a panic into a *PanicError.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				Value:      r,
				StackTrace: string(debug.Stack()),
			}
		}
	}()
	return fn()
}

// TransientError marks a failure that is safe to ignore or retry,
// such as a component shutdown that timed out.
type TransientError struct {
	Op  string
	Err error
}

// NewTransientError creates a TransientError for the given operation.
func NewTransientError(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

func (t *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", t.Op, t.Err)
}

func (t *TransientError) Unwrap() error {
	return t.Err
}
