package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/nats"
	"github.com/mark3labs/taskwright/internal/task"
	"github.com/nats-io/nats.go/jetstream"
)

// State is the current run state, reconstructed by reducing the event log.
type State struct {
	Run       string                         `json:"run"`
	Statuses  map[string]task.Status         `json:"statuses"`
	Reasons   map[string]string              `json:"reasons"`   // task id -> blocked reason
	Unblocked map[string]map[string]struct{} `json:"unblocked"` // task id -> force-removed blockers
	Started   bool                           `json:"started"`
	Complete  bool                           `json:"complete"`
}

// NewState returns an empty state for a run.
func NewState(run string) *State {
	return &State{
		Run:       run,
		Statuses:  make(map[string]task.Status),
		Reasons:   make(map[string]string),
		Unblocked: make(map[string]map[string]struct{}),
	}
}

// StatusOf returns the persisted status of a task, defaulting to pending.
func (st *State) StatusOf(id string) task.Status {
	if s, ok := st.Statuses[id]; ok {
		return s
	}
	return task.StatusPending
}

// IsUnblocked reports whether the edge blocker->id was force-removed.
func (st *State) IsUnblocked(id, blocker string) bool {
	_, ok := st.Unblocked[id][blocker]
	return ok
}

// RemainingBlockers returns t's blockers that are neither completed nor
// force-unblocked, in sorted order. An empty result means the task is ready.
func (st *State) RemainingBlockers(t *task.Task) []string {
	var remaining []string
	for _, dep := range t.BlockedByIDs() {
		if st.StatusOf(dep) == task.StatusCompleted {
			continue
		}
		if st.IsUnblocked(t.ID, dep) {
			continue
		}
		remaining = append(remaining, dep)
	}
	return remaining
}

// Apply applies an event to the state, implementing the reduce pattern.
func (st *State) Apply(event Event) {
	switch event.Type {
	case nats.EventTypeTask:
		st.applyTaskEvent(event)
	case nats.EventTypeRun:
		st.applyRunEvent(event)
	case nats.EventTypeControl:
		st.applyControlEvent(event)
	}
}

func (st *State) applyTaskEvent(event Event) {
	switch event.Action {
	case "status":
		var meta TaskStatusParams
		json.Unmarshal(event.Meta, &meta)
		if meta.TaskID == "" {
			return
		}
		st.Statuses[meta.TaskID] = meta.Status
		if meta.Status == task.StatusBlocked && meta.Reason != "" {
			st.Reasons[meta.TaskID] = meta.Reason
		} else {
			delete(st.Reasons, meta.TaskID)
		}

	case "force_unblock":
		var meta struct {
			TaskID  string `json:"task_id"`
			Blocker string `json:"blocker"`
		}
		json.Unmarshal(event.Meta, &meta)
		if meta.TaskID == "" || meta.Blocker == "" {
			return
		}
		if st.Unblocked[meta.TaskID] == nil {
			st.Unblocked[meta.TaskID] = make(map[string]struct{})
		}
		st.Unblocked[meta.TaskID][meta.Blocker] = struct{}{}
	}
}

func (st *State) applyRunEvent(event Event) {
	if event.Action == "start" {
		st.Started = true
	}
}

func (st *State) applyControlEvent(event Event) {
	if event.Action == "run_complete" {
		st.Complete = true
	}
}

// LoadState reconstructs the current state of a run by reading and reducing
// all events from the JetStream event log.
func (s *Store) LoadState(ctx context.Context, run string) (*State, error) {
	consumer, err := s.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: nats.SubjectForRun(run),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	state := NewState(run)

	const batchSize = 1000
	malformedCount := 0
	for {
		msgs, err := consumer.FetchNoWait(batchSize)
		if err != nil {
			break
		}

		msgCount := 0
		for msg := range msgs.Messages() {
			msgCount++
			var event Event
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				// Malformed events are skipped but acked so they are not
				// redelivered forever.
				malformedCount++
				msg.Ack()
				continue
			}
			state.Apply(event)
			msg.Ack()
		}

		if msgCount < batchSize {
			break
		}
	}

	if malformedCount > 0 {
		logger.Warn("Skipped %d malformed events while loading state", malformedCount)
		fmt.Fprintf(os.Stderr, "Warning: Skipped %d malformed events while loading state\n", malformedCount)
	}

	logger.Debug("State loaded for run %s: %d task records", run, len(state.Statuses))
	return state, nil
}
