package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/taskwright/internal/config"
	"github.com/mark3labs/taskwright/internal/orchestrator"
	"github.com/mark3labs/taskwright/internal/store"
	"github.com/spf13/cobra"
)

var statusFlags struct {
	plan    string
	name    string
	dataDir string
	asJSON  bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run progress and blocked tasks",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusFlags.plan, "plan", "p", "", "Plan file path (required)")
	statusCmd.Flags().StringVarP(&statusFlags.name, "name", "n", "", "Run name (default: plan name slug)")
	statusCmd.Flags().StringVar(&statusFlags.dataDir, "data-dir", "", "Data directory for run state storage")
	statusCmd.Flags().BoolVar(&statusFlags.asJSON, "json", false, "Emit machine-readable JSON")
	statusCmd.MarkFlagRequired("plan")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = statusFlags.dataDir
	}

	plan, g, err := loadPlanSet(statusFlags.plan)
	if err != nil {
		return err
	}

	run := statusFlags.name
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

	progress := store.Snapshot(state, g.Set)
	blocked := store.BlockedReport(state, g.Set)

	if statusFlags.asJSON {
		out := struct {
			Run      string              `json:"run"`
			Complete bool                `json:"complete"`
			Progress store.Progress      `json:"progress"`
			Blocked  []store.BlockedTask `json:"blocked"`
		}{Run: run, Complete: state.Complete, Progress: progress, Blocked: blocked}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Run: %s\n", run)
	fmt.Printf("Progress: %d/%d completed (%.0f%%), %d blocked, %d skipped\n",
		progress.Completed, progress.Total, progress.Percentage, progress.Blocked, progress.Skipped)
	if state.Complete {
		fmt.Println("Status: complete")
	}
	for _, b := range blocked {
		reason := state.Reasons[b.TaskID]
		if reason != "" {
			fmt.Printf("  %s: blocked (%s), waiting for %v\n", b.TaskID, reason, b.WaitingFor)
		} else {
			fmt.Printf("  %s: waiting for %v\n", b.TaskID, b.WaitingFor)
		}
	}
	return nil
}
