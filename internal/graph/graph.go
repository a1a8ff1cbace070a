// Package graph materializes explicit and phase-inferred dependency edges
// into one uniform edge set and validates it before scheduling.
package graph

import (
	"fmt"
	"sort"

	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/task"
)

// Graph wraps a validated task set whose blockedBy/blocks sets hold the full
// materialized edge set. Downstream components never distinguish explicit
// from inferred edges.
type Graph struct {
	Set      *task.Set
	Warnings []Warning
}

// Build validates all declared edges, mirrors them into inverse sets, and
// infers phase-ordering edges for tasks that declared none. Unknown ids are
// fatal; a blocks entry without its matching blocked_by is a warning.
func Build(set *task.Set) (*Graph, error) {
	g := &Graph{Set: set}

	// Reference validation over the declared sets, declared order first so
	// the earliest offending record wins.
	for _, id := range set.Order {
		t := set.Tasks[id]
		for _, ref := range t.BlockedByIDs() {
			if _, ok := set.Tasks[ref]; !ok {
				return nil, &ReferenceError{TaskID: id, Ref: ref, Field: "blocked_by"}
			}
		}
		for _, ref := range t.BlocksIDs() {
			if _, ok := set.Tasks[ref]; !ok {
				return nil, &ReferenceError{TaskID: id, Ref: ref, Field: "blocks"}
			}
		}
	}

	// blocked_by is the canonical declaration; a declared blocks entry whose
	// inverse was not declared is inconsistent but still materialized.
	for _, id := range set.Order {
		t := set.Tasks[id]
		for _, dep := range t.BlocksIDs() {
			if _, ok := set.Tasks[dep].BlockedBy[id]; !ok {
				g.warnf(id, "blocks %s but %s does not declare blocked_by %s", dep, dep, id)
			}
		}
	}

	// Mirror declared edges first so a blocks-side declaration counts as
	// explicit during inference, then mirror again for the inferred edges.
	g.mirror()
	g.inferPhaseEdges()
	g.mirror()

	logger.Debug("Graph built: %d tasks, %d warnings", set.Len(), len(g.Warnings))
	return g, nil
}

// inferPhaseEdges adds deterministic ordering edges for tasks that declared
// no dependencies:
//   - the first non-parallel task of a phase depends on every task of the
//     immediately preceding phase
//   - a parallel task depends on the nearest preceding non-parallel task
//     within its own phase
func (g *Graph) inferPhaseEdges() {
	phases := g.Set.Phases

	for pi, phase := range phases {
		var lastSequential string

		for _, id := range phase.TaskIDs {
			t := g.Set.Tasks[id]

			if !t.Parallel {
				if lastSequential == "" && pi > 0 && len(t.BlockedBy) == 0 {
					for _, prevID := range phases[pi-1].TaskIDs {
						t.BlockedBy[prevID] = struct{}{}
					}
				}
				lastSequential = id
				continue
			}

			if len(t.BlockedBy) == 0 && lastSequential != "" {
				t.BlockedBy[lastSequential] = struct{}{}
			}
		}
	}
}

// mirror makes blockedBy and blocks exact inverses across the set.
func (g *Graph) mirror() {
	for id, t := range g.Set.Tasks {
		for dep := range t.BlockedBy {
			g.Set.Tasks[dep].Blocks[id] = struct{}{}
		}
		for dep := range t.Blocks {
			g.Set.Tasks[dep].BlockedBy[id] = struct{}{}
		}
	}
}

// Validate runs cycle detection over the materialized edge set. Scheduling
// must not start while any cycle exists.
func (g *Graph) Validate() error {
	cycles := g.FindCycles()
	if len(cycles) == 0 {
		return nil
	}
	return &CycleError{Cycles: cycles}
}

// FindCycles returns every independent cycle in the blockedBy relation.
// Each cycle is reported as the path from the first occurrence of the
// re-entered task through the closing edge, e.g. [T010 T011 T012 T010].
// Cycles sharing no tasks are reported separately; detection is
// deterministic (sorted id order).
func (g *Graph) FindCycles() [][]string {
	banned := make(map[string]bool)
	var cycles [][]string

	for {
		cycle := g.findCycle(banned)
		if cycle == nil {
			return cycles
		}
		cycles = append(cycles, cycle)
		// Remove this cycle's tasks from consideration so only independent
		// cycles are reported.
		for _, id := range cycle {
			banned[id] = true
		}
	}
}

// findCycle performs a DFS over the blockedBy adjacency with an explicit
// recursion stack and returns one cycle, or nil.
func (g *Graph) findCycle(banned map[string]bool) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, g.Set.Len())
	var path []string
	onPath := make(map[string]int) // id -> index in path

	var dfs func(id string) []string
	dfs = func(id string) []string {
		color[id] = gray
		onPath[id] = len(path)
		path = append(path, id)

		t := g.Set.Tasks[id]
		for _, next := range t.BlockedByIDs() {
			if banned[next] {
				continue
			}
			if color[next] == gray {
				// Extract the path slice from next's first occurrence, then
				// close the cycle.
				start := onPath[next]
				cycle := append([]string(nil), path[start:]...)
				cycle = append(cycle, next)
				return cycle
			}
			if color[next] == white {
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}

		color[id] = black
		path = path[:len(path)-1]
		delete(onPath, id)
		return nil
	}

	ids := make([]string, 0, g.Set.Len())
	for id := range g.Set.Tasks {
		if !banned[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func (g *Graph) warnf(id, format string, args ...any) {
	g.Warnings = append(g.Warnings, Warning{TaskID: id, Msg: fmt.Sprintf(format, args...)})
}
