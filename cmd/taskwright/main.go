package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/mark3labs/taskwright/internal/graph"
	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/task"
	"github.com/spf13/cobra"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	// Ensure logger is closed on exit
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskwright",
	Short: "Dependency-ordered task execution engine with durable run state",
	Long: `taskwright executes implementation plans as dependency-ordered task runs.

It parses a structured task list, materializes explicit and phase-inferred
dependency edges into a validated graph, and dispatches ready tasks to a
worker process in a deterministic order. Run state is event-sourced through
embedded NATS JetStream, so an interrupted run resumes exactly where it
stopped. Applied tasks can be committed one commit per task and pushed per
policy.`,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(configCmd)
}

// loadPlanSet loads and validates a plan into a materialized task set,
// printing graph warnings to stderr.
func loadPlanSet(planPath string) (*task.Plan, *graph.Graph, error) {
	plan, err := task.LoadPlan(planPath)
	if err != nil {
		return nil, nil, err
	}

	set, err := plan.Parse()
	if err != nil {
		return nil, nil, err
	}

	g, err := graph.Build(set)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range g.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s: %s\n", w.TaskID, w.Msg)
	}
	return plan, g, nil
}
