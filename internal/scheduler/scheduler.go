// Package scheduler drives dependency-ordered task execution. It keeps a
// Ready/Blocked partition over the task set, recomputed from the state
// store after every terminal outcome, and dispatches work to a Runner in a
// deterministic order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/runner"
	"github.com/mark3labs/taskwright/internal/store"
	"github.com/mark3labs/taskwright/internal/task"
	"golang.org/x/sync/errgroup"
)

// ErrRunAborted is returned when an abort decision or cancellation halted
// dispatch before all tasks reached a terminal state.
var ErrRunAborted = errors.New("run aborted")

// Config holds the scheduler's collaborators.
type Config struct {
	Set         *task.Set
	Store       *store.Store
	Run         string // run (plan) name
	Runner      runner.Runner
	Decider     runner.Decider // consulted on apply failure; default aborts
	MaxParallel int            // concurrent runner invocations, default 4

	// OnApplied is called once per successfully applied task, in dispatch
	// order, before the completed status is persisted. Commit hooks go here.
	OnApplied func(t *task.Task, res runner.Result) error
}

// Scheduler sequences Runner calls over a validated task set.
type Scheduler struct {
	cfg Config
}

// New creates a Scheduler. The graph must already be validated acyclic.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Set == nil {
		return nil, fmt.Errorf("task set is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Decider == nil {
		cfg.Decider = runner.AbortOnFailure
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 4
	}
	return &Scheduler{cfg: cfg}, nil
}

// Ready returns the pending tasks whose blockers are all completed (or
// force-unblocked), sorted by the documented dispatch order: phase
// ascending, then task id ascending. Ids are unique, so the stated
// sequential-before-parallel key never breaks a tie.
func Ready(set *task.Set, st *store.State) []string {
	var ready []string
	for _, id := range set.Order {
		t := set.Tasks[id]
		if st.StatusOf(id) != task.StatusPending {
			continue
		}
		if len(st.RemainingBlockers(t)) == 0 {
			ready = append(ready, id)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := set.Tasks[ready[i]], set.Tasks[ready[j]]
		if a.Phase != b.Phase {
			return a.Phase < b.Phase
		}
		return a.ID < b.ID
	})
	return ready
}

// Blocked returns the pending tasks with unresolved blockers plus tasks
// persisted as blocked (apply failures awaiting operator resolution).
func Blocked(set *task.Set, st *store.State) []string {
	var blocked []string
	for _, id := range set.Order {
		t := set.Tasks[id]
		switch st.StatusOf(id) {
		case task.StatusBlocked:
			blocked = append(blocked, id)
		case task.StatusPending:
			if len(st.RemainingBlockers(t)) > 0 {
				blocked = append(blocked, id)
			}
		}
	}
	return blocked
}

// Summary reports how a scheduling pass ended.
type Summary struct {
	Completed int
	Skipped   int
	Blocked   []string // task ids left blocked or unreachable
	Aborted   bool
}

// Run executes the scheduling loop in sequential mode: sequential tasks one
// at a time, parallel-eligible tasks of the same phase fanned out per batch.
// It returns ErrRunAborted when dispatch was halted early; apply failures
// on one branch do not stop unrelated branches.
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	if err := s.recoverInterrupted(ctx); err != nil {
		return nil, err
	}
	summary := &Summary{}

	for {
		// Abort requests halt dispatch of further tasks; in-flight work has
		// already been awaited by the time we get here.
		if ctx.Err() != nil {
			summary.Aborted = true
			return s.finish(ctx, summary)
		}

		state, err := s.cfg.Store.LoadState(ctx, s.cfg.Run)
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}

		ready := Ready(s.cfg.Set, state)
		if len(ready) == 0 {
			return s.finish(ctx, summary)
		}

		batch := nextBatch(s.cfg.Set, ready)
		logger.Debug("Dispatching batch of %d task(s): %v", len(batch), batch)

		aborted, err := s.runBatch(ctx, batch, summary)
		if err != nil {
			return summary, err
		}
		if aborted {
			summary.Aborted = true
			return s.finish(ctx, summary)
		}
	}
}

// recoverInterrupted returns tasks a dead process left in_progress to
// pending before dispatch starts, so resume sees them as ready again.
func (s *Scheduler) recoverInterrupted(ctx context.Context) error {
	recovered, err := s.cfg.Store.RecoverInterrupted(ctx, s.cfg.Run, s.cfg.Set)
	if err != nil {
		return fmt.Errorf("recover interrupted tasks: %w", err)
	}
	if len(recovered) > 0 {
		logger.Info("Recovered %d interrupted task(s) to pending: %v", len(recovered), recovered)
	}
	return nil
}

// nextBatch selects the next dispatch unit from the sorted ready list: a
// single sequential task, or the maximal prefix of parallel-eligible tasks
// sharing the first task's phase.
func nextBatch(set *task.Set, ready []string) []string {
	first := set.Tasks[ready[0]]
	if !first.Parallel {
		return ready[:1]
	}

	batch := []string{first.ID}
	for _, id := range ready[1:] {
		t := set.Tasks[id]
		if !t.Parallel || t.Phase != first.Phase {
			break
		}
		batch = append(batch, id)
	}
	return batch
}

// batchResult buffers one task's outcome until its turn in the dispatch
// order.
type batchResult struct {
	res runner.Result
	err error
}

// runBatch marks the batch in progress, fans the apply calls out, then
// finalizes results strictly in dispatch order regardless of completion
// order. Returns true when an abort decision was made.
func (s *Scheduler) runBatch(ctx context.Context, batch []string, summary *Summary) (bool, error) {
	// Once a runner call is issued its outcome is always recorded, even when
	// the run context is cancelled mid-batch. Finalization therefore uses a
	// detached context, like the apply calls themselves.
	finCtx := context.WithoutCancel(ctx)

	for _, id := range batch {
		if err := s.transition(finCtx, id, task.StatusInProgress, ""); err != nil {
			return false, err
		}
	}

	results := s.fanOut(ctx, batch)

	// Finalize in dispatch order. Results for later tasks sit buffered
	// until their turn so commits land deterministically.
	aborted := false
	for i, id := range batch {
		t := s.cfg.Set.Tasks[id]
		r := results[i]

		for {
			if r.err == nil {
				if err := s.applySuccess(finCtx, t, r.res); err != nil {
					return false, err
				}
				summary.Completed++
				break
			}

			decision := s.cfg.Decider(t, r.err)
			logger.Info("Task %s apply failed (%v), decision: %s", id, r.err, decision)

			switch decision {
			case runner.DecisionRetry:
				// Retries are always explicit; re-apply synchronously.
				res, err := s.cfg.Runner.Apply(finCtx, t)
				r = batchResult{res: res, err: err}
				continue
			case runner.DecisionSkip:
				if err := s.transition(finCtx, id, task.StatusSkipped, ""); err != nil {
					return false, err
				}
				summary.Skipped++
			default:
				// Abort: record the failure, halt further dispatch. The rest
				// of this batch has already completed its runner calls; their
				// results are still finalized below so no applied work is
				// left unrecorded.
				if err := s.transition(finCtx, id, task.StatusBlocked, "apply error"); err != nil {
					return false, err
				}
				aborted = true
			}
			break
		}

		if aborted {
			// Finalize the remainder of the batch without consulting the
			// decider again: successes are committed, failures blocked.
			for j := i + 1; j < len(batch); j++ {
				jt := s.cfg.Set.Tasks[batch[j]]
				jr := results[j]
				if jr.err == nil {
					if err := s.applySuccess(finCtx, jt, jr.res); err != nil {
						return false, err
					}
					summary.Completed++
				} else {
					if err := s.transition(finCtx, batch[j], task.StatusBlocked, "apply error"); err != nil {
						return false, err
					}
				}
			}
			return true, nil
		}
	}

	return false, nil
}

// fanOut issues the batch's runner calls. A single task is applied inline;
// independent parallel tasks run as concurrent invocations and are rejoined
// before the batch is considered closed. Apply calls get a detached context:
// an abort never force-kills an in-flight runner call.
func (s *Scheduler) fanOut(ctx context.Context, batch []string) []batchResult {
	applyCtx := context.WithoutCancel(ctx)
	results := make([]batchResult, len(batch))

	if len(batch) == 1 {
		res, err := s.cfg.Runner.Apply(applyCtx, s.cfg.Set.Tasks[batch[0]])
		results[0] = batchResult{res: res, err: err}
		return results
	}

	var eg errgroup.Group
	eg.SetLimit(s.cfg.MaxParallel)
	for i, id := range batch {
		t := s.cfg.Set.Tasks[id]
		eg.Go(func() error {
			res, err := s.cfg.Runner.Apply(applyCtx, t)
			results[i] = batchResult{res: res, err: err}
			return nil
		})
	}
	eg.Wait()
	return results
}

// applySuccess runs the commit hook, then persists the completed status.
func (s *Scheduler) applySuccess(ctx context.Context, t *task.Task, res runner.Result) error {
	if s.cfg.OnApplied != nil {
		if err := s.cfg.OnApplied(t, res); err != nil {
			return fmt.Errorf("post-apply hook for %s: %w", t.ID, err)
		}
	}
	return s.transition(ctx, t.ID, task.StatusCompleted, "")
}

func (s *Scheduler) transition(ctx context.Context, id string, to task.Status, reason string) error {
	return s.cfg.Store.TaskStatus(ctx, s.cfg.Run, store.TaskStatusParams{
		TaskID: id,
		Status: to,
		Reason: reason,
	})
}

// finish computes the final summary. The run is marked complete only when
// every task reached a terminal state.
func (s *Scheduler) finish(ctx context.Context, summary *Summary) (*Summary, error) {
	state, err := s.cfg.Store.LoadState(context.WithoutCancel(ctx), s.cfg.Run)
	if err != nil {
		return summary, fmt.Errorf("load state: %w", err)
	}

	summary.Blocked = Blocked(s.cfg.Set, state)

	allTerminal := true
	for _, id := range s.cfg.Set.Order {
		if !state.StatusOf(id).IsTerminal() {
			allTerminal = false
			break
		}
	}
	if allTerminal {
		if err := s.cfg.Store.RunComplete(context.WithoutCancel(ctx), s.cfg.Run); err != nil {
			return summary, err
		}
	}

	if summary.Aborted {
		return summary, ErrRunAborted
	}
	return summary, nil
}
