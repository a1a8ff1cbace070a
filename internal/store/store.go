// Package store persists per-task run state through JetStream event
// sourcing. Every status change is an appended event; current state is
// rebuilt by reducing the event log, which makes resume trivially
// crash-safe.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/nats"
	"github.com/mark3labs/taskwright/internal/task"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/xid"
)

// Event is a generic event in the append-only run log.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Run       string          `json:"run"`    // run (plan) name
	Type      string          `json:"type"`   // task, run, control
	Action    string          `json:"action"` // status, force_unblock, start, complete
	Meta      json.RawMessage `json:"meta"`
	Data      string          `json:"data"`
}

// Store manages run state through JetStream event sourcing.
type Store struct {
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewStore creates a Store over the given JetStream context and stream.
func NewStore(js jetstream.JetStream, stream jetstream.Stream) *Store {
	return &Store{js: js, stream: stream}
}

// PublishEvent appends an event to the run log and waits for the stream
// ack. This is the append-then-flush point: a status update is durable
// before the scheduler acts on it.
func (s *Store) PublishEvent(ctx context.Context, event Event) (*jetstream.PubAck, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = xid.New().String()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := nats.SubjectForEvent(event.Run, event.Type)
	logger.Debug("Publishing event: run=%s type=%s action=%s", event.Run, event.Type, event.Action)

	ack, err := s.js.Publish(ctx, subject, data)
	if err != nil {
		logger.Error("Failed to publish event to subject %s: %v", subject, err)
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}
	return ack, nil
}

// TaskStatusParams are the parameters for a status transition event.
type TaskStatusParams struct {
	TaskID string      `json:"task_id"`
	Status task.Status `json:"status"`
	Reason string      `json:"reason,omitempty"` // e.g. "apply error"
}

// TaskStatus records a validated status transition for a task. The previous
// status comes from the reduced log, so two writers cannot interleave
// partial updates to the same record: the publish either lands whole or
// not at all.
func (s *Store) TaskStatus(ctx context.Context, run string, params TaskStatusParams) error {
	if params.TaskID == "" {
		return fmt.Errorf("task id is required")
	}

	state, err := s.LoadState(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	from := state.StatusOf(params.TaskID)
	if !task.ValidTransition(from, params.Status) {
		return fmt.Errorf("invalid transition for %s: %s -> %s", params.TaskID, from, params.Status)
	}

	meta, _ := json.Marshal(params)
	_, err = s.PublishEvent(ctx, Event{
		Run:    run,
		Type:   nats.EventTypeTask,
		Action: "status",
		Data:   string(params.Status),
		Meta:   meta,
	})
	return err
}

// RecoverInterrupted reverts every task persisted as in_progress back to
// pending and returns the reverted ids. An in_progress record with no
// terminal outcome means the process died or was killed mid-apply; reverting
// it keeps the ready set a pure function of terminal outcomes plus the task
// definitions.
func (s *Store) RecoverInterrupted(ctx context.Context, run string, set *task.Set) ([]string, error) {
	state, err := s.LoadState(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var recovered []string
	for _, id := range set.Order {
		if state.StatusOf(id) != task.StatusInProgress {
			continue
		}
		if err := s.TaskStatus(ctx, run, TaskStatusParams{TaskID: id, Status: task.StatusPending}); err != nil {
			return recovered, err
		}
		recovered = append(recovered, id)
	}
	return recovered, nil
}

// ForceUnblock records the explicit removal of one edge from a task's
// blockedBy set. It never happens implicitly.
func (s *Store) ForceUnblock(ctx context.Context, run, taskID, blocker string) error {
	if taskID == "" || blocker == "" {
		return fmt.Errorf("task id and blocker are required")
	}

	meta, _ := json.Marshal(map[string]string{
		"task_id": taskID,
		"blocker": blocker,
	})
	_, err := s.PublishEvent(ctx, Event{
		Run:    run,
		Type:   nats.EventTypeTask,
		Action: "force_unblock",
		Data:   fmt.Sprintf("%s no longer waits for %s", taskID, blocker),
		Meta:   meta,
	})
	return err
}

// RunStart records the beginning of a scheduling pass.
func (s *Store) RunStart(ctx context.Context, run string, total int) error {
	meta, _ := json.Marshal(map[string]int{"total": total})
	_, err := s.PublishEvent(ctx, Event{
		Run:    run,
		Type:   nats.EventTypeRun,
		Action: "start",
		Meta:   meta,
	})
	return err
}

// RunComplete marks the run as complete. All tasks must be terminal.
func (s *Store) RunComplete(ctx context.Context, run string) error {
	state, err := s.LoadState(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	for id, st := range state.Statuses {
		if !st.IsTerminal() {
			return fmt.Errorf("cannot complete run: task %s is %s", id, st)
		}
	}

	_, err = s.PublishEvent(ctx, Event{
		Run:    run,
		Type:   nats.EventTypeControl,
		Action: "run_complete",
		Data:   "Run marked as complete",
	})
	return err
}

// Reset purges all persisted events for a run. Explicit, destructive.
func (s *Store) Reset(ctx context.Context, run string) error {
	return nats.PurgeRun(ctx, s.stream, run)
}
