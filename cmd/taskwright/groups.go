package main

import (
	"fmt"

	"github.com/mark3labs/taskwright/internal/config"
	"github.com/mark3labs/taskwright/internal/group"
	"github.com/spf13/cobra"
)

var groupsFlags struct {
	plan      string
	groupSize int
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Preview how a plan's tasks would be grouped in batched mode",
	RunE:  runGroups,
}

func init() {
	groupsCmd.Flags().StringVarP(&groupsFlags.plan, "plan", "p", "", "Plan file path (required)")
	groupsCmd.Flags().IntVar(&groupsFlags.groupSize, "group-size", 0, "Group size cap (5-7)")
	groupsCmd.MarkFlagRequired("plan")
}

func runGroups(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("group-size") {
		cfg.GroupSize = groupsFlags.groupSize
	}

	plan, g, err := loadPlanSet(groupsFlags.plan)
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}

	groups := group.Partition(g.Set, g.Set.Order, group.Options{MaxSize: cfg.GroupSize})

	fmt.Printf("Plan '%s': %d tasks in %d groups (cap %d)\n\n", plan.Name, g.Set.Len(), len(groups), cfg.GroupSize)
	for i, grp := range groups {
		story := grp.StoryID
		if story == "" {
			story = "(no story)"
		}
		fmt.Printf("Group %d (phase %d, %s):\n", i+1, grp.Phase, story)
		for _, id := range grp.TaskIDs {
			fmt.Printf("  %s  %s\n", id, g.Set.Tasks[id].Description)
		}
		fmt.Println()
	}
	return nil
}
