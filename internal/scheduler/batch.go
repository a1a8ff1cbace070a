package scheduler

import (
	"context"
	"fmt"

	"github.com/mark3labs/taskwright/internal/group"
	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/runner"
	"github.com/mark3labs/taskwright/internal/task"
	"golang.org/x/sync/errgroup"
)

// BatchConfig extends Config for batched mode.
type BatchConfig struct {
	Config

	GroupSize int // group size cap, clamped to [5,7]

	// OnGroupApplied is called after a group's members are finalized, in
	// group dispatch order. Push-per-group policies hook in here.
	OnGroupApplied func(g group.Group) error
}

// RunBatched executes the scheduling loop in batched mode: each wave's ready
// tasks are partitioned into groups, groups without dependency edges between
// them run concurrently, and each group's members run sequentially inside it.
func RunBatched(ctx context.Context, cfg BatchConfig) (*Summary, error) {
	s, err := New(cfg.Config)
	if err != nil {
		return nil, err
	}
	if err := s.recoverInterrupted(ctx); err != nil {
		return nil, err
	}
	summary := &Summary{}

	for {
		if ctx.Err() != nil {
			summary.Aborted = true
			return s.finish(ctx, summary)
		}

		state, err := cfg.Store.LoadState(ctx, cfg.Run)
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}

		ready := Ready(cfg.Set, state)
		if len(ready) == 0 {
			return s.finish(ctx, summary)
		}

		groups := group.Partition(cfg.Set, ready, group.Options{MaxSize: cfg.GroupSize})
		wave := independentWave(cfg.Set, groups)
		logger.Debug("Dispatching wave of %d group(s)", len(wave))

		aborted, err := s.runWave(ctx, cfg, wave, summary)
		if err != nil {
			return summary, err
		}
		if aborted {
			summary.Aborted = true
			return s.finish(ctx, summary)
		}
	}
}

// independentWave takes the longest prefix of groups that are pairwise
// independent. Groups built from a single ready set have no cross edges,
// but the check keeps the invariant explicit.
func independentWave(set *task.Set, groups []group.Group) []group.Group {
	wave := []group.Group{groups[0]}
	for _, g := range groups[1:] {
		ok := true
		for _, w := range wave {
			if !group.Independent(set, w, g) {
				ok = false
				break
			}
		}
		if !ok {
			break
		}
		wave = append(wave, g)
	}
	return wave
}

// groupRun records how far a group got and each started member's result.
type groupRun struct {
	started int // members that reached the runner
	results []batchResult
}

// runWave marks and applies each group's members (sequentially inside the
// group, groups concurrently up to MaxParallel), then finalizes every result
// in group dispatch order.
func (s *Scheduler) runWave(ctx context.Context, cfg BatchConfig, wave []group.Group, summary *Summary) (bool, error) {
	// Detached from cancellation: started members always have their outcome
	// applied and recorded, even when the run is aborted mid-wave.
	applyCtx := context.WithoutCancel(ctx)
	runs := make([]*groupRun, len(wave))

	var eg errgroup.Group
	eg.SetLimit(s.cfg.MaxParallel)
	for gi, g := range wave {
		runs[gi] = &groupRun{results: make([]batchResult, len(g.TaskIDs))}
		eg.Go(func() error {
			return s.applyGroup(applyCtx, g, runs[gi])
		})
	}
	if err := eg.Wait(); err != nil {
		return false, err
	}

	// Finalize in dispatch order: group order, member order. A member the
	// group never reached stays pending and is picked up by the next wave.
	aborted := false
	for gi, g := range wave {
		run := runs[gi]
		applied := false
		for mi := 0; mi < run.started; mi++ {
			id := g.TaskIDs[mi]
			t := s.cfg.Set.Tasks[id]
			r := run.results[mi]

			for {
				if r.err == nil {
					if err := s.applySuccess(applyCtx, t, r.res); err != nil {
						return false, err
					}
					summary.Completed++
					applied = true
					break
				}

				if aborted {
					if err := s.transition(applyCtx, id, task.StatusBlocked, "apply error"); err != nil {
						return false, err
					}
					break
				}

				decision := s.cfg.Decider(t, r.err)
				logger.Info("Task %s apply failed (%v), decision: %s", id, r.err, decision)

				switch decision {
				case runner.DecisionRetry:
					res, err := s.cfg.Runner.Apply(applyCtx, t)
					r = batchResult{res: res, err: err}
					continue
				case runner.DecisionSkip:
					if err := s.transition(applyCtx, id, task.StatusSkipped, ""); err != nil {
						return false, err
					}
					summary.Skipped++
				default:
					if err := s.transition(applyCtx, id, task.StatusBlocked, "apply error"); err != nil {
						return false, err
					}
					aborted = true
				}
				break
			}
		}

		if applied && cfg.OnGroupApplied != nil {
			if err := cfg.OnGroupApplied(g); err != nil {
				return false, fmt.Errorf("post-group hook for %s phase %d: %w", g.StoryID, g.Phase, err)
			}
		}
	}

	return aborted, nil
}

// applyGroup runs one group's members in order, stopping at the first
// failure. Later members are left untouched for the next wave.
func (s *Scheduler) applyGroup(ctx context.Context, g group.Group, run *groupRun) error {
	for mi, id := range g.TaskIDs {
		if err := s.transition(ctx, id, task.StatusInProgress, ""); err != nil {
			return err
		}
		res, err := s.cfg.Runner.Apply(ctx, s.cfg.Set.Tasks[id])
		run.results[mi] = batchResult{res: res, err: err}
		run.started = mi + 1
		if err != nil {
			return nil
		}
	}
	return nil
}
