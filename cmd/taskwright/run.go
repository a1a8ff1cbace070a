package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mark3labs/taskwright/internal/config"
	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/orchestrator"
	"github.com/mark3labs/taskwright/internal/runner"
	"github.com/mark3labs/taskwright/internal/task"
	"github.com/spf13/cobra"
)

var runFlags struct {
	plan        string
	name        string
	worker      string
	mode        string
	maxParallel int
	groupSize   int
	autoCommit  bool
	pushPolicy  string
	dataDir     string
	reset       bool
	onFailure   string
	maxRetries  int
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a plan's tasks in dependency order",
	Long: `Execute a plan's tasks in dependency order.

Ready tasks are dispatched to the configured worker executable one at a
time; parallel-marked tasks of the same phase fan out concurrently. In
batched mode, ready tasks are partitioned into phase- and story-scoped
groups first. Every status change is persisted, so re-running the same
plan resumes from the last durable state.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.plan, "plan", "p", "", "Plan file path (required)")
	runCmd.Flags().StringVarP(&runFlags.name, "name", "n", "", "Run name (default: plan name slug)")
	runCmd.Flags().StringVarP(&runFlags.worker, "worker", "w", "", "Worker executable that applies tasks")
	runCmd.Flags().StringVar(&runFlags.mode, "mode", "", "Execution mode: sequential or batched")
	runCmd.Flags().IntVar(&runFlags.maxParallel, "max-parallel", 0, "Max concurrent worker invocations")
	runCmd.Flags().IntVar(&runFlags.groupSize, "group-size", 0, "Group size cap in batched mode (5-7)")
	runCmd.Flags().BoolVar(&runFlags.autoCommit, "auto-commit", true, "Create one commit per applied task")
	runCmd.Flags().StringVar(&runFlags.pushPolicy, "push-policy", "", "Push policy: never, after-each-task, after-each-group")
	runCmd.Flags().StringVar(&runFlags.dataDir, "data-dir", "", "Data directory for run state storage")
	runCmd.Flags().BoolVar(&runFlags.reset, "reset", false, "Discard persisted state for this run before starting")
	runCmd.Flags().StringVar(&runFlags.onFailure, "on-failure", "abort", "Reaction to a failed apply: abort, retry, or skip")
	runCmd.Flags().IntVar(&runFlags.maxRetries, "max-retries", 2, "Retry attempts per task when --on-failure=retry")
	runCmd.MarkFlagRequired("plan")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyLoggerConfig(cfg)

	// CLI flags override config file and environment values.
	if cmd.Flags().Changed("worker") {
		cfg.Worker = runFlags.worker
	}
	if cmd.Flags().Changed("mode") {
		cfg.Mode = runFlags.mode
	}
	if cmd.Flags().Changed("max-parallel") {
		cfg.MaxParallel = runFlags.maxParallel
	}
	if cmd.Flags().Changed("group-size") {
		cfg.GroupSize = runFlags.groupSize
	}
	if cmd.Flags().Changed("auto-commit") {
		cfg.AutoCommit = runFlags.autoCommit
	}
	if cmd.Flags().Changed("push-policy") {
		cfg.PushPolicy = runFlags.pushPolicy
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = runFlags.dataDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	decider, err := makeDecider(runFlags.onFailure, runFlags.maxRetries)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		PlanPath:    runFlags.plan,
		RunName:     runFlags.name,
		Worker:      cfg.Worker,
		Mode:        cfg.Mode,
		MaxParallel: cfg.MaxParallel,
		GroupSize:   cfg.GroupSize,
		AutoCommit:  cfg.AutoCommit,
		PushPolicy:  cfg.PushPolicy,
		DataDir:     cfg.DataDir,
		Reset:       runFlags.reset,
		Decider:     decider,
		OnText: func(text string) {
			fmt.Println(text)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	if err := orch.Start(); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	defer func() {
		if err := orch.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}()

	// First interrupt aborts the run: dispatch stops after the in-flight
	// task is awaited and its outcome recorded. A second interrupt force
	// quits.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nAborting: waiting for the in-flight task to finish (interrupt again to force quit)...")
		orch.Abort()
		<-sigChan
		os.Exit(1)
	}()

	fmt.Printf("=== Run: %s ===\n", orch.Run())
	fmt.Printf("Tasks: %d, mode: %s\n\n", orch.Set().Len(), cfg.Mode)

	summary, execErr := orch.Execute()

	if summary != nil {
		fmt.Printf("\nCompleted: %d, skipped: %d, blocked: %d\n",
			summary.Completed, summary.Skipped, len(summary.Blocked))
	}

	progress, blocked, err := orch.Progress()
	if err == nil {
		fmt.Printf("Progress: %d/%d (%.0f%%)\n", progress.Completed, progress.Total, progress.Percentage)
		for _, b := range blocked {
			fmt.Printf("  blocked: %s waiting for %v\n", b.TaskID, b.WaitingFor)
		}
	}

	return execErr
}

// makeDecider builds the failure policy. Retry is capped per task; once the
// budget is spent the run aborts.
func makeDecider(policy string, maxRetries int) (runner.Decider, error) {
	switch policy {
	case "abort":
		return runner.AbortOnFailure, nil
	case "skip":
		return func(_ *task.Task, _ error) runner.Decision {
			return runner.DecisionSkip
		}, nil
	case "retry":
		var mu sync.Mutex
		attempts := make(map[string]int)
		return func(t *task.Task, _ error) runner.Decision {
			mu.Lock()
			defer mu.Unlock()
			attempts[t.ID]++
			if attempts[t.ID] > maxRetries {
				return runner.DecisionAbort
			}
			return runner.DecisionRetry
		}, nil
	default:
		return nil, fmt.Errorf("invalid --on-failure value: %s (must be abort, retry, or skip)", policy)
	}
}

// applyLoggerConfig applies config-file log settings when the environment
// did not already configure the logger.
func applyLoggerConfig(cfg *config.Config) {
	if os.Getenv("TASKWRIGHT_LOG_LEVEL") == "" && cfg.LogLevel != "" {
		if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
			logger.Default.SetLevel(level)
		}
	}
	if os.Getenv("TASKWRIGHT_LOG_FILE") == "" && cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			logger.Default.SetOutput(f)
		}
	}
}
