package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "taskwright_events"

// Event types published to the stream.
const (
	EventTypeTask    = "task"
	EventTypeRun     = "run"
	EventTypeControl = "control"
)

// SubjectForRun returns the wildcard subject pattern for all events of a run.
// Example: "taskwright.my-feature.>"
func SubjectForRun(run string) string {
	return fmt.Sprintf("taskwright.%s.>", run)
}

// SubjectForEvent returns the specific subject for an event type in a run.
// Example: "taskwright.my-feature.task"
func SubjectForEvent(run, eventType string) string {
	return fmt.Sprintf("taskwright.%s.%s", run, eventType)
}

// SetupStream creates or updates the JetStream stream for taskwright events.
// The stream captures all events for all runs with 90-day retention: run
// state persists for the lifetime of a feature's implementation effort.
func SetupStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	return js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"taskwright.>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   90 * 24 * time.Hour,
	})
}

// PurgeRun removes all persisted events for a run. Used by explicit resets.
func PurgeRun(ctx context.Context, stream jetstream.Stream, run string) error {
	return stream.Purge(ctx, jetstream.WithPurgeSubject(SubjectForRun(run)))
}
