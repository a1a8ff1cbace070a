// Package orchestrator wires the plan, dependency graph, state store,
// scheduler, and worker runner into one run lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	ierr "github.com/mark3labs/taskwright/internal/errors"
	"github.com/mark3labs/taskwright/internal/git"
	"github.com/mark3labs/taskwright/internal/graph"
	"github.com/mark3labs/taskwright/internal/group"
	"github.com/mark3labs/taskwright/internal/hooks"
	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/runner"
	"github.com/mark3labs/taskwright/internal/scheduler"
	"github.com/mark3labs/taskwright/internal/store"
	"github.com/mark3labs/taskwright/internal/task"
)

// Config holds configuration for the orchestrator.
type Config struct {
	PlanPath    string // Path to the plan document
	RunName     string // Run name override (defaults to the plan slug)
	Worker      string // Worker executable for task application
	Mode        string // sequential or batched
	MaxParallel int    // Concurrent runner invocations
	GroupSize   int    // Group size cap in batched mode
	AutoCommit  bool   // Commit applied tasks
	PushPolicy  string // never, after-each-task, after-each-group
	DataDir     string // Data directory for NATS storage
	WorkDir     string // Working directory for the worker and git
	Reset       bool   // Discard persisted state before running

	Decider runner.Decider    // Failure resolution; defaults to abort
	Runner  runner.Runner     // Runner override (defaults to the worker subprocess)
	OnText  func(text string) // Worker progress output callback
}

// Orchestrator manages a run: embedded NATS, state store, scheduler, and
// the worker runner.
type Orchestrator struct {
	cfg     Config
	env     *Env
	plan    *task.Plan
	set     *task.Set
	run     string
	runner  runner.Runner
	hooks   *hooks.Config
	commits *git.Committer
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// New creates a new Orchestrator with the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = ".taskwright"
	}
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.WorkDir = wd
	}
	if cfg.Mode == "" {
		cfg.Mode = "sequential"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{cfg: cfg, ctx: ctx, cancel: cancel}, nil
}

// Run returns the resolved run name. Valid after Start.
func (o *Orchestrator) Run() string { return o.run }

// Store returns the state store. Valid after Start.
func (o *Orchestrator) Store() *store.Store { return o.env.Store }

// Set returns the validated task set. Valid after Start.
func (o *Orchestrator) Set() *task.Set { return o.set }

// Start loads and validates the plan, brings up the embedded runtime, and
// verifies persisted state against the current task list.
func (o *Orchestrator) Start() error {
	logger.Info("Starting orchestrator for plan '%s'", o.cfg.PlanPath)

	plan, err := task.LoadPlan(o.cfg.PlanPath)
	if err != nil {
		return err
	}
	o.plan = plan

	o.run = o.cfg.RunName
	if o.run == "" {
		o.run = plan.Slug()
	}

	set, err := plan.Parse()
	if err != nil {
		return err
	}

	g, err := graph.Build(set)
	if err != nil {
		return err
	}
	for _, w := range g.Warnings {
		logger.Warn("Graph warning for %s: %s", w.TaskID, w.Msg)
		fmt.Fprintf(os.Stderr, "Warning: %s: %s\n", w.TaskID, w.Msg)
	}
	// No scheduling while any cycle exists.
	if err := g.Validate(); err != nil {
		return err
	}
	o.set = g.Set

	logger.Debug("Opening run environment in %s", o.cfg.DataDir)
	env, err := OpenEnv(o.ctx, o.cfg.DataDir)
	if err != nil {
		return err
	}
	o.env = env

	if o.cfg.Reset {
		logger.Info("Resetting persisted state for run '%s'", o.run)
		if err := o.env.Store.Reset(o.ctx, o.run); err != nil {
			return fmt.Errorf("failed to reset run: %w", err)
		}
	}

	state, err := o.env.Store.LoadState(o.ctx, o.run)
	if err != nil {
		return fmt.Errorf("failed to load run state: %w", err)
	}
	if state.Complete {
		return fmt.Errorf("run '%s' is already complete (use --reset to start over)", o.run)
	}

	warnings, err := store.CheckResume(state, o.set)
	for _, w := range warnings {
		logger.Warn("Resume: %s", w)
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	if err != nil {
		return err
	}

	hookCfg, err := hooks.LoadConfig(o.cfg.WorkDir)
	if err != nil {
		return err
	}
	o.hooks = hookCfg

	if o.cfg.AutoCommit {
		if !git.IsRepo(o.cfg.WorkDir) {
			return fmt.Errorf("auto_commit is enabled but %s is not a git repository", o.cfg.WorkDir)
		}
		o.commits = git.NewCommitter(o.cfg.WorkDir, git.PushPolicy(o.cfg.PushPolicy))
	}

	o.runner = o.cfg.Runner
	if o.runner == nil {
		if o.cfg.Worker == "" {
			return fmt.Errorf("no worker configured (set worker in config or pass --worker)")
		}
		o.runner = runner.NewCommand(runner.CommandConfig{
			Bin:     o.cfg.Worker,
			WorkDir: o.cfg.WorkDir,
			OnText:  o.cfg.OnText,
		})
	}

	logger.Info("Orchestrator started for run '%s' (%d tasks)", o.run, o.set.Len())
	return nil
}

// Execute drives the scheduling loop to its end and reports the outcome.
func (o *Orchestrator) Execute() (*scheduler.Summary, error) {
	state, err := o.env.Store.LoadState(o.ctx, o.run)
	if err != nil {
		return nil, fmt.Errorf("failed to load run state: %w", err)
	}
	if !state.Started {
		if err := o.env.Store.RunStart(o.ctx, o.run, o.set.Len()); err != nil {
			return nil, fmt.Errorf("failed to record run start: %w", err)
		}
	}

	cfg := scheduler.Config{
		Set:         o.set,
		Store:       o.env.Store,
		Run:         o.run,
		Runner:      o.hookedRunner(),
		Decider:     o.cfg.Decider,
		MaxParallel: o.cfg.MaxParallel,
		OnApplied:   o.onApplied,
	}

	var summary *scheduler.Summary
	err = ierr.Recover(func() error {
		var runErr error
		if o.cfg.Mode == "batched" {
			summary, runErr = scheduler.RunBatched(o.ctx, scheduler.BatchConfig{
				Config:         cfg,
				GroupSize:      o.cfg.GroupSize,
				OnGroupApplied: o.onGroupApplied,
			})
		} else {
			var s *scheduler.Scheduler
			s, runErr = scheduler.New(cfg)
			if runErr == nil {
				summary, runErr = s.Run(o.ctx)
			}
		}
		return runErr
	})

	if err != nil {
		var panicErr *ierr.PanicError
		if errors.As(err, &panicErr) {
			logger.Error("Run '%s' panicked with stack trace: %s", o.run, panicErr.StackTrace)
			return summary, fmt.Errorf("run '%s' panicked: %w", o.run, err)
		}
		if errors.Is(err, scheduler.ErrRunAborted) {
			return summary, err
		}
		return summary, fmt.Errorf("run '%s' failed: %w", o.run, err)
	}

	return summary, nil
}

// Abort cancels the run context. Dispatch stops once the in-flight batch is
// awaited and finalized; Execute then returns scheduler.ErrRunAborted. The
// running worker call is never force-killed.
func (o *Orchestrator) Abort() {
	o.cancel()
}

// Progress returns the completion snapshot and the blocked report for the
// current run. It works after an abort, so the context is detached.
func (o *Orchestrator) Progress() (store.Progress, []store.BlockedTask, error) {
	state, err := o.env.Store.LoadState(context.WithoutCancel(o.ctx), o.run)
	if err != nil {
		return store.Progress{}, nil, fmt.Errorf("failed to load run state: %w", err)
	}
	return store.Snapshot(state, o.set), store.BlockedReport(state, o.set), nil
}

// hookedRunner wraps the configured runner with the optional pre_task and
// post_task shell hooks. Hook output goes to the progress callback.
func (o *Orchestrator) hookedRunner() runner.Runner {
	if o.hooks == nil {
		return o.runner
	}

	return runner.Func(func(ctx context.Context, t *task.Task) (runner.Result, error) {
		vars := hooks.Variables{
			Run:   o.run,
			Task:  t.ID,
			Phase: strconv.Itoa(t.Phase),
		}

		if out, err := hooks.Execute(ctx, o.hooks.Hooks.PreTask, o.cfg.WorkDir, vars); err != nil {
			return runner.Result{}, err
		} else if out != "" && o.cfg.OnText != nil {
			o.cfg.OnText(out)
		}

		res, applyErr := o.runner.Apply(ctx, t)
		if applyErr != nil {
			return res, applyErr
		}

		if out, err := hooks.Execute(ctx, o.hooks.Hooks.PostTask, o.cfg.WorkDir, vars); err != nil {
			return runner.Result{}, err
		} else if out != "" && o.cfg.OnText != nil {
			o.cfg.OnText(out)
		}
		return res, nil
	})
}

// onApplied commits a successfully applied task and pushes per policy.
func (o *Orchestrator) onApplied(t *task.Task, res runner.Result) error {
	if o.commits == nil {
		return nil
	}
	if err := o.commits.CommitTask(t, res.FilesChanged); err != nil {
		return err
	}
	if err := o.commits.AfterTask(); err != nil {
		// A failed push must not lose applied work; surface and continue.
		logger.Warn("Push after task %s failed: %v", t.ID, err)
		fmt.Fprintf(os.Stderr, "Warning: push after %s failed: %v\n", t.ID, err)
	}
	return nil
}

// onGroupApplied pushes per the after-each-group policy.
func (o *Orchestrator) onGroupApplied(g group.Group) error {
	if o.commits == nil {
		return nil
	}
	if err := o.commits.AfterGroup(); err != nil {
		logger.Warn("Push after group (phase %d, story %s) failed: %v", g.Phase, g.StoryID, err)
		fmt.Fprintf(os.Stderr, "Warning: push after group failed: %v\n", err)
	}
	return nil
}

// Stop gracefully shuts down all components. Multiple calls are safe.
func (o *Orchestrator) Stop() error {
	if o.stopped {
		return nil
	}
	o.stopped = true

	logger.Info("Stopping orchestrator for run '%s'", o.run)

	multiErr := &ierr.MultiError{}

	if o.cancel != nil {
		o.cancel()
	}

	if o.env != nil {
		if err := o.env.Close(); err != nil {
			// A timed-out server exit is transient: events were drained first,
			// so nothing is lost and shutdown proceeds.
			var transient *ierr.TransientError
			if errors.As(err, &transient) {
				logger.Warn("Shutdown: %v", err)
			} else {
				logger.Error("NATS shutdown failed: %v", err)
				multiErr.Append(fmt.Errorf("NATS shutdown failed: %w", err))
			}
		}
		o.env = nil
	}

	logger.Info("Orchestrator stopped")
	return multiErr.ErrorOrNil()
}
