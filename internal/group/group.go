// Package group batches ready tasks into bounded, phase- and story-scoped
// execution groups to cut per-task dispatch overhead in batched mode.
package group

import (
	"sort"

	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/task"
)

// DefaultMaxSize is the default group size cap. The accepted range is 5-7.
const DefaultMaxSize = 5

// Group is an execution-time batch of tasks. It never spans two phases and
// is executed sequentially internally regardless of per-task markers.
type Group struct {
	Phase   int
	StoryID string
	TaskIDs []string
}

// Options configures the partitioner.
type Options struct {
	MaxSize int // group size cap; clamped to [5,7], default 5
}

// Partition batches the given ready task ids into groups, strictly in this
// order: phase partition (hard), story partition (primary), file-overlap
// affinity (soft split signal), size cap (hard). Output order is
// deterministic: phase ascending, then first task id ascending.
func Partition(set *task.Set, ready []string, opts Options) []Group {
	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	if maxSize < 5 {
		maxSize = 5
	}
	if maxSize > 7 {
		maxSize = 7
	}

	// Phase partition (hard boundary).
	byPhase := make(map[int][]string)
	for _, id := range ready {
		t := set.Tasks[id]
		if t == nil {
			continue
		}
		byPhase[t.Phase] = append(byPhase[t.Phase], id)
	}

	phases := make([]int, 0, len(byPhase))
	for p := range byPhase {
		phases = append(phases, p)
	}
	sort.Ints(phases)

	var groups []Group
	for _, phase := range phases {
		groups = append(groups, partitionPhase(set, phase, byPhase[phase], maxSize)...)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Phase != groups[j].Phase {
			return groups[i].Phase < groups[j].Phase
		}
		return groups[i].TaskIDs[0] < groups[j].TaskIDs[0]
	})

	logger.Debug("Partitioned %d ready tasks into %d groups (cap %d)", len(ready), len(groups), maxSize)
	return groups
}

// partitionPhase splits one phase's tasks by story, then applies the size cap.
func partitionPhase(set *task.Set, phase int, ids []string, maxSize int) []Group {
	byStory := make(map[string][]string)
	for _, id := range ids {
		story := set.Tasks[id].StoryID
		byStory[story] = append(byStory[story], id)
	}

	stories := make([]string, 0, len(byStory))
	for s := range byStory {
		stories = append(stories, s)
	}
	sort.Strings(stories)

	var groups []Group
	for _, story := range stories {
		members := byStory[story]
		sort.Strings(members)
		for _, chunk := range splitByAffinity(set, members, maxSize) {
			groups = append(groups, Group{Phase: phase, StoryID: story, TaskIDs: chunk})
		}
	}
	return groups
}

// splitByAffinity divides an ordered member list into the minimum number of
// chunks that respect the size cap. Oversized lists are split at the weakest
// adjacent file-overlap boundary; equal scores split at the earliest
// boundary (lower task id first).
func splitByAffinity(set *task.Set, members []string, maxSize int) [][]string {
	n := len(members)
	if n <= maxSize {
		return [][]string{members}
	}

	// The number of chunks is fixed up front so the soft affinity signal only
	// chooses where to cut, never how many groups exist.
	chunks := (n + maxSize - 1) / maxSize

	// Valid first-cut positions keep both sides packable: the head must fit
	// one chunk, the tail the remaining chunks.
	lo := n - maxSize*(chunks-1)
	if lo < 1 {
		lo = 1
	}
	hi := maxSize

	best := lo
	bestScore := -1
	for i := lo; i <= hi && i < n; i++ {
		score := overlap(set.Tasks[members[i-1]], set.Tasks[members[i]])
		if bestScore == -1 || score < bestScore {
			best = i
			bestScore = score
		}
	}

	head := members[:best]
	tail := splitByAffinity(set, members[best:], maxSize)
	return append([][]string{head}, tail...)
}

// overlap counts shared file paths between two tasks.
func overlap(a, b *task.Task) int {
	if a == nil || b == nil {
		return 0
	}
	files := make(map[string]struct{}, len(a.FilePaths))
	for _, f := range a.FilePaths {
		files[f] = struct{}{}
	}
	n := 0
	for _, f := range b.FilePaths {
		if _, ok := files[f]; ok {
			n++
		}
	}
	return n
}

// Independent reports whether no dependency edge crosses the two groups.
// Independent groups may be dispatched concurrently.
func Independent(set *task.Set, a, b Group) bool {
	inB := make(map[string]struct{}, len(b.TaskIDs))
	for _, id := range b.TaskIDs {
		inB[id] = struct{}{}
	}
	for _, id := range a.TaskIDs {
		t := set.Tasks[id]
		if t == nil {
			continue
		}
		for dep := range t.BlockedBy {
			if _, ok := inB[dep]; ok {
				return false
			}
		}
		for dep := range t.Blocks {
			if _, ok := inB[dep]; ok {
				return false
			}
		}
	}
	return true
}
