package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/taskwright/internal/config"
	"github.com/mark3labs/taskwright/internal/orchestrator"
	"github.com/spf13/cobra"
)

var unblockFlags struct {
	plan    string
	name    string
	dataDir string
}

var unblockCmd = &cobra.Command{
	Use:   "unblock TASK BLOCKER",
	Short: "Force-remove one blocker edge from a task",
	Long: `Force-remove one blocker edge from a task.

The removal is recorded as an explicit event: the scheduler will treat the
edge as satisfied from now on, including across resumes. Dependencies are
never removed implicitly.`,
	Args: cobra.ExactArgs(2),
	RunE: runUnblock,
}

func init() {
	unblockCmd.Flags().StringVarP(&unblockFlags.plan, "plan", "p", "", "Plan file path (required)")
	unblockCmd.Flags().StringVarP(&unblockFlags.name, "name", "n", "", "Run name (default: plan name slug)")
	unblockCmd.Flags().StringVar(&unblockFlags.dataDir, "data-dir", "", "Data directory for run state storage")
	unblockCmd.MarkFlagRequired("plan")
}

func runUnblock(cmd *cobra.Command, args []string) error {
	taskID, blocker := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = unblockFlags.dataDir
	}

	plan, g, err := loadPlanSet(unblockFlags.plan)
	if err != nil {
		return err
	}

	t := g.Set.Get(taskID)
	if t == nil {
		return fmt.Errorf("unknown task: %s", taskID)
	}
	if _, ok := t.BlockedBy[blocker]; !ok {
		return fmt.Errorf("%s is not blocked by %s", taskID, blocker)
	}

	run := unblockFlags.name
	if run == "" {
		run = plan.Slug()
	}

	ctx := context.Background()
	env, err := orchestrator.OpenEnv(ctx, cfg.DataDir)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.Store.ForceUnblock(ctx, run, taskID, blocker); err != nil {
		return err
	}

	fmt.Printf("%s no longer waits for %s\n", taskID, blocker)
	return nil
}
