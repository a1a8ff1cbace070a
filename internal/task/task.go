// Package task defines the task data model and the parser that turns raw
// plan records into validated Task and Phase entities.
package task

import (
	"sort"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusSkipped    Status = "skipped"
)

// IsTerminal reports whether the status is terminal. Blocked is not terminal:
// a blocked task returns to pending once its blockers resolve.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped:
		return true
	default:
		return false
	}
}

// ValidTransition reports whether moving from one status to another is
// allowed. Pending may be skipped directly (explicit operator decision).
// In_progress may return to pending: a record with no terminal outcome
// means the apply was interrupted and the work is re-dispatched from
// scratch.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusSkipped
	case StatusInProgress:
		return to == StatusCompleted || to == StatusBlocked || to == StatusSkipped || to == StatusPending
	case StatusBlocked:
		return to == StatusPending
	default:
		return false
	}
}

// Task is the atomic unit of work. Tasks are created once at parse time;
// Status is the only field mutated during a run.
type Task struct {
	ID          string
	Phase       int
	StoryID     string
	Parallel    bool
	Description string
	FilePaths   []string
	Status      Status
	BlockedBy   map[string]struct{}
	Blocks      map[string]struct{}
}

// BlockedByIDs returns the blocker ids in sorted order.
func (t *Task) BlockedByIDs() []string {
	return sortedKeys(t.BlockedBy)
}

// BlocksIDs returns the dependent ids in sorted order.
func (t *Task) BlocksIDs() []string {
	return sortedKeys(t.Blocks)
}

// Phase is a hard synchronization boundary grouping tasks.
type Phase struct {
	Number  int
	Name    string
	TaskIDs []string // ordered as declared in the plan
}

// Set is the validated output of parsing: an indexed task table plus the
// declared ordering and phase groupings.
type Set struct {
	Tasks  map[string]*Task
	Order  []string // declared plan order
	Phases []*Phase // ascending by number
}

// Get returns the task with the given id, or nil.
func (s *Set) Get(id string) *Task {
	return s.Tasks[id]
}

// Len returns the number of tasks in the set.
func (s *Set) Len() int {
	return len(s.Tasks)
}

// PhaseFor returns the phase containing the given task id, or nil.
func (s *Set) PhaseFor(id string) *Phase {
	t := s.Tasks[id]
	if t == nil {
		return nil
	}
	for _, p := range s.Phases {
		if p.Number == t.Phase {
			return p
		}
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
