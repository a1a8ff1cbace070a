package main

import (
	"errors"
	"fmt"

	"github.com/mark3labs/taskwright/internal/graph"
	"github.com/spf13/cobra"
)

var validateFlags struct {
	plan string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse a plan and validate its dependency graph",
	Long: `Parse a plan and validate its dependency graph without executing anything.

Reports parse errors, unknown dependency references, one-sided edge
declarations, and every independent dependency cycle.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateFlags.plan, "plan", "p", "", "Plan file path (required)")
	validateCmd.MarkFlagRequired("plan")
}

func runValidate(cmd *cobra.Command, args []string) error {
	plan, g, err := loadPlanSet(validateFlags.plan)
	if err != nil {
		return err
	}

	if err := g.Validate(); err != nil {
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			fmt.Printf("Plan '%s' has %d dependency cycle(s):\n", plan.Name, len(cycleErr.Cycles))
			for _, cycle := range cycleErr.Cycles {
				fmt.Print("  ")
				for i, id := range cycle {
					if i > 0 {
						fmt.Print(" -> ")
					}
					fmt.Print(id)
				}
				fmt.Println()
			}
		}
		return err
	}

	fmt.Printf("Plan '%s' is valid: %d tasks across %d phases\n",
		plan.Name, g.Set.Len(), len(g.Set.Phases))
	return nil
}
