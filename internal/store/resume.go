package store

import (
	"errors"
	"fmt"

	"github.com/mark3labs/taskwright/internal/task"
)

// ErrResumeMismatch is returned when persisted state references a task id
// absent from the current task list and that id is still a live blocker.
var ErrResumeMismatch = errors.New("resume mismatch")

// ResumeMismatchError names the missing task and the tasks still waiting
// on it.
type ResumeMismatchError struct {
	TaskID       string
	ReferencedBy []string
}

func (e *ResumeMismatchError) Error() string {
	return fmt.Sprintf("%s: persisted task %s is absent from the plan but still blocks %v",
		ErrResumeMismatch.Error(), e.TaskID, e.ReferencedBy)
}

func (e *ResumeMismatchError) Unwrap() error { return ErrResumeMismatch }

// CheckResume verifies persisted state against the current task set. A
// persisted id absent from the set is fatal only when a live edge still
// references it; otherwise it is reported as a warning and execution
// proceeds.
func CheckResume(state *State, set *task.Set) ([]string, error) {
	var warnings []string

	for id := range state.Statuses {
		if _, ok := set.Tasks[id]; ok {
			continue
		}

		var referencedBy []string
		for _, cur := range set.Order {
			t := set.Tasks[cur]
			if _, ok := t.BlockedBy[id]; ok && !state.IsUnblocked(cur, id) {
				referencedBy = append(referencedBy, cur)
			}
		}

		if len(referencedBy) > 0 {
			return warnings, &ResumeMismatchError{TaskID: id, ReferencedBy: referencedBy}
		}
		warnings = append(warnings, fmt.Sprintf("persisted task %s is absent from the plan (no live edges, ignoring)", id))
	}

	return warnings, nil
}
