package task

import (
	"regexp"
	"sort"

	"github.com/mark3labs/taskwright/internal/logger"
)

// idPattern is the only bit-exact contract on task ids.
var idPattern = regexp.MustCompile(`^T\d{3}$`)

// Raw is one task record as supplied by the plan document. The parser
// captures parallel and story markers verbatim and does not interpret
// the description.
type Raw struct {
	ID          string   `yaml:"id" json:"id"`
	Phase       int      `yaml:"phase" json:"phase"`
	Story       string   `yaml:"story,omitempty" json:"story,omitempty"`
	Parallel    bool     `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	Description string   `yaml:"description" json:"description"`
	Files       []string `yaml:"files,omitempty" json:"files,omitempty"`
	BlockedBy   []string `yaml:"blocked_by,omitempty" json:"blocked_by,omitempty"`
	Blocks      []string `yaml:"blocks,omitempty" json:"blocks,omitempty"`
}

// Parse validates an ordered list of raw records and produces the task set.
// Rejects duplicate ids, malformed ids, and missing required fields. It does
// not resolve dependency references; that is the graph builder's job.
func Parse(records []Raw, phaseNames map[int]string) (*Set, error) {
	set := &Set{
		Tasks: make(map[string]*Task, len(records)),
		Order: make([]string, 0, len(records)),
	}

	for i, rec := range records {
		if rec.ID == "" {
			return nil, parseErrorf(i, "", "missing id")
		}
		if !idPattern.MatchString(rec.ID) {
			return nil, parseErrorf(i, rec.ID, "malformed id (want T followed by three digits)")
		}
		if _, exists := set.Tasks[rec.ID]; exists {
			return nil, duplicateError(i, rec.ID)
		}
		if rec.Description == "" {
			return nil, parseErrorf(i, rec.ID, "missing description")
		}
		if rec.Phase < 1 {
			return nil, parseErrorf(i, rec.ID, "phase must be >= 1 (got %d)", rec.Phase)
		}

		t := &Task{
			ID:          rec.ID,
			Phase:       rec.Phase,
			StoryID:     rec.Story,
			Parallel:    rec.Parallel,
			Description: rec.Description,
			FilePaths:   append([]string(nil), rec.Files...),
			Status:      StatusPending,
			BlockedBy:   make(map[string]struct{}),
			Blocks:      make(map[string]struct{}),
		}
		for _, dep := range rec.BlockedBy {
			t.BlockedBy[dep] = struct{}{}
		}
		for _, dep := range rec.Blocks {
			t.Blocks[dep] = struct{}{}
		}

		set.Tasks[rec.ID] = t
		set.Order = append(set.Order, rec.ID)
	}

	set.Phases = buildPhases(set, phaseNames)

	logger.Debug("Parsed %d tasks across %d phases", len(set.Tasks), len(set.Phases))
	return set, nil
}

// buildPhases groups tasks into phases in declared order, ascending by
// phase number.
func buildPhases(set *Set, names map[int]string) []*Phase {
	byNumber := make(map[int]*Phase)
	for _, id := range set.Order {
		t := set.Tasks[id]
		p, ok := byNumber[t.Phase]
		if !ok {
			p = &Phase{Number: t.Phase, Name: names[t.Phase]}
			byNumber[t.Phase] = p
		}
		p.TaskIDs = append(p.TaskIDs, id)
	}

	phases := make([]*Phase, 0, len(byNumber))
	for _, p := range byNumber {
		phases = append(phases, p)
	}
	sort.Slice(phases, func(i, j int) bool {
		return phases[i].Number < phases[j].Number
	})
	return phases
}
