package store

import (
	"github.com/mark3labs/taskwright/internal/task"
)

// Progress is the machine-readable completion snapshot for a run.
type Progress struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Blocked    int     `json:"blocked"`
	Skipped    int     `json:"skipped"`
	Percentage float64 `json:"percentage"`
}

// BlockedTask pairs a task with the blockers it is still waiting for.
type BlockedTask struct {
	TaskID     string   `json:"taskId"`
	WaitingFor []string `json:"waitingFor"`
}

// Snapshot derives completion metrics from persisted statuses and the
// current task set.
func Snapshot(state *State, set *task.Set) Progress {
	p := Progress{Total: set.Len()}

	for _, id := range set.Order {
		switch state.StatusOf(id) {
		case task.StatusCompleted:
			p.Completed++
		case task.StatusBlocked:
			p.Blocked++
		case task.StatusSkipped:
			p.Skipped++
		}
	}

	if p.Total > 0 {
		p.Percentage = float64(p.Completed) / float64(p.Total) * 100
	}
	return p
}

// BlockedReport lists every non-terminal task that still has unresolved
// blockers, with the ids it waits for, in declared plan order.
func BlockedReport(state *State, set *task.Set) []BlockedTask {
	var report []BlockedTask
	for _, id := range set.Order {
		t := set.Tasks[id]
		if state.StatusOf(id).IsTerminal() {
			continue
		}
		waiting := state.RemainingBlockers(t)
		if len(waiting) > 0 {
			report = append(report, BlockedTask{TaskID: id, WaitingFor: waiting})
		}
	}
	return report
}
