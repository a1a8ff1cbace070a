package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidReference is returned when an edge names an unknown task id.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrCircularDependency is returned when one or more cycles exist.
	ErrCircularDependency = errors.New("circular dependency")
)

// ReferenceError identifies the task and the unknown id it referenced.
type ReferenceError struct {
	TaskID string
	Ref    string
	Field  string // "blocked_by" or "blocks"
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: task %s references unknown id %s in %s",
		ErrInvalidReference.Error(), e.TaskID, e.Ref, e.Field)
}

func (e *ReferenceError) Unwrap() error { return ErrInvalidReference }

// CycleError carries every independent cycle found. Each cycle is a path
// slice that starts and ends on the same task id.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	paths := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		paths[i] = strings.Join(c, " -> ")
	}
	return fmt.Sprintf("%s: %s", ErrCircularDependency.Error(), strings.Join(paths, "; "))
}

func (e *CycleError) Unwrap() error { return ErrCircularDependency }

// Warning is a non-fatal finding from graph construction.
type Warning struct {
	TaskID string
	Msg    string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.TaskID, w.Msg)
}
