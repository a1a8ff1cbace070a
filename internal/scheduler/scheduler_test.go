package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/taskwright/internal/graph"
	"github.com/mark3labs/taskwright/internal/group"
	"github.com/mark3labs/taskwright/internal/nats"
	"github.com/mark3labs/taskwright/internal/runner"
	"github.com/mark3labs/taskwright/internal/store"
	"github.com/mark3labs/taskwright/internal/task"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	ns, err := nats.StartEmbedded(t.TempDir())
	require.NoError(t, err)

	nc, err := nats.ConnectInProcess(ns)
	require.NoError(t, err)

	t.Cleanup(func() {
		shutdownNATS(nc, ns)
	})

	js, err := nats.CreateJetStream(nc)
	require.NoError(t, err)

	stream, err := nats.SetupStream(context.Background(), js)
	require.NoError(t, err)

	return store.NewStore(js, stream)
}

func shutdownNATS(nc *natsgo.Conn, ns *natsserver.Server) {
	_ = nats.Shutdown(nc, ns)
}

func buildSet(t *testing.T, records []task.Raw) *task.Set {
	t.Helper()
	set, err := task.Parse(records, nil)
	require.NoError(t, err)
	g, err := graph.Build(set)
	require.NoError(t, err)
	require.NoError(t, g.Validate())
	return g.Set
}

func TestReadyOrder(t *testing.T) {
	// T005 is parallel with no preceding sequential task in its phase, so no
	// ordering edge is inferred and all three start ready.
	set := buildSet(t, []task.Raw{
		{ID: "T005", Phase: 2, Parallel: true, Description: "later phase"},
		{ID: "T003", Phase: 1, Parallel: true, Description: "setup c"},
		{ID: "T001", Phase: 1, Parallel: true, Description: "setup a"},
	})

	ready := Ready(set, store.NewState("demo"))
	require.Equal(t, []string{"T001", "T003", "T005"}, ready)
}

func TestReadyExcludesBlockedAndTerminal(t *testing.T) {
	set := buildSet(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "base"},
		{ID: "T002", Phase: 1, Description: "dependent", BlockedBy: []string{"T001"}},
	})

	st := store.NewState("demo")
	require.Equal(t, []string{"T001"}, Ready(set, st))
	require.Equal(t, []string{"T002"}, Blocked(set, st))
}

func TestRunSequentialChain(t *testing.T) {
	set := buildSet(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "first"},
		{ID: "T002", Phase: 1, Description: "second", BlockedBy: []string{"T001"}},
		{ID: "T003", Phase: 1, Description: "third", BlockedBy: []string{"T002"}},
	})
	st := newTestStore(t)

	var applied []string
	s, err := New(Config{
		Set:   set,
		Store: st,
		Run:   "chain",
		Runner: runner.Func(func(_ context.Context, tk *task.Task) (runner.Result, error) {
			applied = append(applied, tk.ID)
			return runner.Result{}, nil
		}),
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"T001", "T002", "T003"}, applied)
	require.Equal(t, 3, summary.Completed)
	require.Empty(t, summary.Blocked)

	state, err := st.LoadState(context.Background(), "chain")
	require.NoError(t, err)
	require.True(t, state.Complete)
	for _, id := range set.Order {
		require.Equal(t, task.StatusCompleted, state.StatusOf(id))
	}
}

func TestRunParallelBatchCommitOrder(t *testing.T) {
	set := buildSet(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "gate"},
		{ID: "T002", Phase: 1, Parallel: true, Description: "a"},
		{ID: "T003", Phase: 1, Parallel: true, Description: "b"},
		{ID: "T004", Phase: 1, Parallel: true, Description: "c"},
	})
	st := newTestStore(t)

	// Later tasks finish first; finalization order must not care.
	delays := map[string]time.Duration{"T002": 40 * time.Millisecond, "T003": 20 * time.Millisecond}
	var mu sync.Mutex
	var finished []string
	var committed []string

	s, err := New(Config{
		Set:         set,
		Store:       st,
		Run:         "parallel",
		MaxParallel: 4,
		Runner: runner.Func(func(_ context.Context, tk *task.Task) (runner.Result, error) {
			time.Sleep(delays[tk.ID])
			mu.Lock()
			finished = append(finished, tk.ID)
			mu.Unlock()
			return runner.Result{}, nil
		}),
		OnApplied: func(tk *task.Task, _ runner.Result) error {
			committed = append(committed, tk.ID)
			return nil
		},
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, summary.Completed)
	require.Equal(t, []string{"T001", "T002", "T003", "T004"}, committed)
	require.Len(t, finished, 4)
}

func TestRunFailureSkipLeavesDependentsBlocked(t *testing.T) {
	set := buildSet(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "fails"},
		{ID: "T002", Phase: 1, Description: "depends on failure", BlockedBy: []string{"T001"}},
		{ID: "T003", Phase: 1, Description: "independent branch"},
	})
	st := newTestStore(t)

	s, err := New(Config{
		Set:   set,
		Store: st,
		Run:   "skip",
		Runner: runner.Func(func(_ context.Context, tk *task.Task) (runner.Result, error) {
			if tk.ID == "T001" {
				return runner.Result{}, &runner.ApplyError{TaskID: tk.ID, Reason: "boom"}
			}
			return runner.Result{}, nil
		}),
		Decider: func(_ *task.Task, _ error) runner.Decision {
			return runner.DecisionSkip
		},
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, 1, summary.Skipped)
	// A skipped blocker does not satisfy its dependents.
	require.Equal(t, []string{"T002"}, summary.Blocked)

	state, err := st.LoadState(context.Background(), "skip")
	require.NoError(t, err)
	require.False(t, state.Complete)
	require.Equal(t, task.StatusSkipped, state.StatusOf("T001"))
	require.Equal(t, task.StatusPending, state.StatusOf("T002"))
	require.Equal(t, task.StatusCompleted, state.StatusOf("T003"))
}

func TestRunFailureAbort(t *testing.T) {
	set := buildSet(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "fails"},
		{ID: "T002", Phase: 1, Description: "never dispatched", BlockedBy: []string{"T001"}},
	})
	st := newTestStore(t)

	s, err := New(Config{
		Set:   set,
		Store: st,
		Run:   "abort",
		Runner: runner.Func(func(_ context.Context, tk *task.Task) (runner.Result, error) {
			return runner.Result{}, &runner.ApplyError{TaskID: tk.ID, Reason: "boom"}
		}),
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrRunAborted)
	require.True(t, summary.Aborted)

	state, err := st.LoadState(context.Background(), "abort")
	require.NoError(t, err)
	require.Equal(t, task.StatusBlocked, state.StatusOf("T001"))
	require.Equal(t, "apply error", state.Reasons["T001"])
	require.Equal(t, task.StatusPending, state.StatusOf("T002"))
}

func TestRunFailureRetrySucceeds(t *testing.T) {
	set := buildSet(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "flaky"},
	})
	st := newTestStore(t)

	attempts := 0
	s, err := New(Config{
		Set:   set,
		Store: st,
		Run:   "retry",
		Runner: runner.Func(func(_ context.Context, tk *task.Task) (runner.Result, error) {
			attempts++
			if attempts == 1 {
				return runner.Result{}, &runner.ApplyError{TaskID: tk.ID, Reason: "transient"}
			}
			return runner.Result{}, nil
		}),
		Decider: func(_ *task.Task, _ error) runner.Decision {
			return runner.DecisionRetry
		},
	})
	require.NoError(t, err)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, 1, summary.Completed)
}

func TestRunIdempotentResume(t *testing.T) {
	set := buildSet(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "once"},
		{ID: "T002", Phase: 1, Description: "twice", BlockedBy: []string{"T001"}},
	})
	st := newTestStore(t)

	run := func(r runner.Runner) (*Summary, error) {
		s, err := New(Config{Set: set, Store: st, Run: "resume", Runner: r})
		require.NoError(t, err)
		return s.Run(context.Background())
	}

	summary, err := run(runner.Func(func(_ context.Context, _ *task.Task) (runner.Result, error) {
		return runner.Result{}, nil
	}))
	require.NoError(t, err)
	require.Equal(t, 2, summary.Completed)

	// A second pass over the same persisted state dispatches nothing.
	summary, err = run(runner.Func(func(_ context.Context, tk *task.Task) (runner.Result, error) {
		t.Errorf("task %s re-dispatched on resume", tk.ID)
		return runner.Result{}, errors.New("unreachable")
	}))
	require.NoError(t, err)
	require.Equal(t, 0, summary.Completed)
}

func TestRunResumesInterruptedTask(t *testing.T) {
	set := buildSet(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "interrupted mid-apply"},
		{ID: "T002", Phase: 1, Description: "dependent", BlockedBy: []string{"T001"}},
	})
	st := newTestStore(t)
	ctx := context.Background()

	// A dead process left T001 in_progress with no terminal outcome.
	require.NoError(t, st.TaskStatus(ctx, "interrupted", store.TaskStatusParams{
		TaskID: "T001",
		Status: task.StatusInProgress,
	}))

	var applied []string
	s, err := New(Config{
		Set:   set,
		Store: st,
		Run:   "interrupted",
		Runner: runner.Func(func(_ context.Context, tk *task.Task) (runner.Result, error) {
			applied = append(applied, tk.ID)
			return runner.Result{}, nil
		}),
	})
	require.NoError(t, err)

	summary, err := s.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"T001", "T002"}, applied)
	require.Equal(t, 2, summary.Completed)

	state, err := st.LoadState(ctx, "interrupted")
	require.NoError(t, err)
	require.True(t, state.Complete)
	require.Equal(t, task.StatusCompleted, state.StatusOf("T001"))
}

func TestRunBatched(t *testing.T) {
	records := []task.Raw{
		{ID: "T001", Phase: 1, Parallel: true, Story: "US1", Description: "a"},
		{ID: "T002", Phase: 1, Parallel: true, Story: "US1", Description: "b"},
		{ID: "T003", Phase: 1, Parallel: true, Story: "US1", Description: "c"},
		{ID: "T004", Phase: 1, Parallel: true, Story: "US1", Description: "d"},
		{ID: "T005", Phase: 1, Parallel: true, Story: "US1", Description: "e"},
		{ID: "T006", Phase: 1, Parallel: true, Story: "US1", Description: "f"},
		{ID: "T007", Phase: 1, Parallel: true, Story: "US1", Description: "g"},
		{ID: "T008", Phase: 1, Parallel: true, Story: "US1", Description: "h"},
	}
	set := buildSet(t, records)
	st := newTestStore(t)

	var mu sync.Mutex
	applied := 0
	var groupSizes []int

	summary, err := RunBatched(context.Background(), BatchConfig{
		Config: Config{
			Set:   set,
			Store: st,
			Run:   "batched",
			Runner: runner.Func(func(_ context.Context, _ *task.Task) (runner.Result, error) {
				mu.Lock()
				applied++
				mu.Unlock()
				return runner.Result{}, nil
			}),
		},
		GroupSize: 5,
		OnGroupApplied: func(g group.Group) error {
			groupSizes = append(groupSizes, len(g.TaskIDs))
			return nil
		},
	})
	require.NoError(t, err)
	require.Equal(t, 8, summary.Completed)
	require.Equal(t, 8, applied)
	// Eight tasks under a cap of five split into exactly two groups.
	require.Len(t, groupSizes, 2)
	require.Equal(t, 8, groupSizes[0]+groupSizes[1])

	state, err := st.LoadState(context.Background(), "batched")
	require.NoError(t, err)
	require.True(t, state.Complete)
}

func TestRunBatchedAbortBlocksFailedTask(t *testing.T) {
	set := buildSet(t, []task.Raw{
		{ID: "T001", Phase: 1, Parallel: true, Story: "US1", Description: "a"},
		{ID: "T002", Phase: 1, Parallel: true, Story: "US1", Description: "b"},
	})
	st := newTestStore(t)

	summary, err := RunBatched(context.Background(), BatchConfig{
		Config: Config{
			Set:   set,
			Store: st,
			Run:   "batched-abort",
			Runner: runner.Func(func(_ context.Context, tk *task.Task) (runner.Result, error) {
				if tk.ID == "T001" {
					return runner.Result{}, &runner.ApplyError{TaskID: tk.ID, Reason: "boom"}
				}
				return runner.Result{}, nil
			}),
		},
	})
	require.ErrorIs(t, err, ErrRunAborted)
	require.True(t, summary.Aborted)

	state, err := st.LoadState(context.Background(), "batched-abort")
	require.NoError(t, err)
	require.Equal(t, task.StatusBlocked, state.StatusOf("T001"))
}
