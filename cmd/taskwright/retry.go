package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/taskwright/internal/config"
	"github.com/mark3labs/taskwright/internal/orchestrator"
	"github.com/mark3labs/taskwright/internal/store"
	"github.com/mark3labs/taskwright/internal/task"
	"github.com/spf13/cobra"
)

var retryFlags struct {
	plan    string
	name    string
	dataDir string
}

var retryCmd = &cobra.Command{
	Use:   "retry TASK",
	Short: "Return a blocked task to pending so the next run re-dispatches it",
	Long: `Return a blocked task to pending so the next run re-dispatches it.

A task whose apply failed under the abort policy stays blocked until an
operator resolves it. Retry records an explicit pending status event for the
task; the next scheduling pass dispatches it again once its blockers are
satisfied.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func init() {
	retryCmd.Flags().StringVarP(&retryFlags.plan, "plan", "p", "", "Plan file path (required)")
	retryCmd.Flags().StringVarP(&retryFlags.name, "name", "n", "", "Run name (default: plan name slug)")
	retryCmd.Flags().StringVar(&retryFlags.dataDir, "data-dir", "", "Data directory for run state storage")
	retryCmd.MarkFlagRequired("plan")
}

func runRetry(cmd *cobra.Command, args []string) error {
	taskID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = retryFlags.dataDir
	}

	plan, g, err := loadPlanSet(retryFlags.plan)
	if err != nil {
		return err
	}
	if g.Set.Get(taskID) == nil {
		return fmt.Errorf("unknown task: %s", taskID)
	}

	run := retryFlags.name
	if run == "" {
		run = plan.Slug()
	}

	ctx := context.Background()
	env, err := orchestrator.OpenEnv(ctx, cfg.DataDir)
	if err != nil {
		return err
	}
	defer env.Close()

	state, err := env.Store.LoadState(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to load run state: %w", err)
	}
	if got := state.StatusOf(taskID); got != task.StatusBlocked {
		return fmt.Errorf("%s is %s, not blocked", taskID, got)
	}

	if err := env.Store.TaskStatus(ctx, run, store.TaskStatusParams{
		TaskID: taskID,
		Status: task.StatusPending,
	}); err != nil {
		return err
	}

	fmt.Printf("%s returned to pending\n", taskID)
	return nil
}
