// Package runner defines the narrow capability interface through which the
// scheduler applies a single task. The actual work is delegated entirely to
// an external collaborator; any implementation (human, script, model)
// satisfies the same contract.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/taskwright/internal/task"
)

// ErrTaskApplyFailure marks a failure reported by the runner for one task.
var ErrTaskApplyFailure = errors.New("task apply failure")

// ApplyError carries the failed task id and the runner's reason.
type ApplyError struct {
	TaskID string
	Reason string
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrTaskApplyFailure.Error(), e.TaskID, e.Reason)
}

func (e *ApplyError) Unwrap() error { return ErrTaskApplyFailure }

// Result is the successful outcome of applying a task.
type Result struct {
	FilesChanged []string
}

// Runner applies exactly one task. A non-nil error is the failure outcome;
// the scheduler interprets it, the runner never retries on its own.
type Runner interface {
	Apply(ctx context.Context, t *task.Task) (Result, error)
}

// Decision is the caller's answer to a failed apply. The scheduler core
// never blocks on a terminal prompt; it asks the configured Decider.
type Decision int

const (
	DecisionAbort Decision = iota
	DecisionRetry
	DecisionSkip
)

func (d Decision) String() string {
	switch d {
	case DecisionAbort:
		return "abort"
	case DecisionRetry:
		return "retry"
	case DecisionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Decider resolves what to do with a task whose apply failed.
type Decider func(t *task.Task, applyErr error) Decision

// AbortOnFailure is the default Decider: surface the failure and stop
// dispatching new work.
func AbortOnFailure(_ *task.Task, _ error) Decision {
	return DecisionAbort
}

// Func adapts a plain function to the Runner interface.
type Func func(ctx context.Context, t *task.Task) (Result, error)

// Apply implements Runner.
func (f Func) Apply(ctx context.Context, t *task.Task) (Result, error) {
	return f(ctx, t)
}
