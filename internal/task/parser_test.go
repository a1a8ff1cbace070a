package task

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	records := []Raw{
		{ID: "T001", Phase: 1, Description: "create models", Files: []string{"models.go"}},
		{ID: "T002", Phase: 1, Story: "US1", Parallel: true, Description: "create schema", BlockedBy: []string{"T001"}},
		{ID: "T003", Phase: 2, Description: "wire service"},
	}

	set, err := Parse(records, map[int]string{1: "Setup", 2: "Core"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if set.Len() != 3 {
		t.Errorf("Expected 3 tasks, got %d", set.Len())
	}
	if got := set.Order; got[0] != "T001" || got[1] != "T002" || got[2] != "T003" {
		t.Errorf("Declared order not preserved: %v", got)
	}

	t2 := set.Get("T002")
	if t2 == nil {
		t.Fatal("T002 missing from set")
	}
	if !t2.Parallel || t2.StoryID != "US1" || t2.Phase != 1 {
		t.Errorf("Markers not captured verbatim: %+v", t2)
	}
	if got := t2.BlockedByIDs(); len(got) != 1 || got[0] != "T001" {
		t.Errorf("Unexpected blockers for T002: %v", got)
	}
	if t2.Status != StatusPending {
		t.Errorf("New task should be pending, got %s", t2.Status)
	}

	if len(set.Phases) != 2 {
		t.Fatalf("Expected 2 phases, got %d", len(set.Phases))
	}
	if set.Phases[0].Name != "Setup" || set.Phases[1].Name != "Core" {
		t.Errorf("Phase names not attached: %+v", set.Phases)
	}
	if p := set.PhaseFor("T003"); p == nil || p.Number != 2 {
		t.Errorf("PhaseFor(T003) = %+v", p)
	}
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name    string
		records []Raw
		want    error
	}{
		{
			name:    "missing id",
			records: []Raw{{Phase: 1, Description: "x"}},
			want:    ErrParse,
		},
		{
			name:    "malformed id",
			records: []Raw{{ID: "TASK1", Phase: 1, Description: "x"}},
			want:    ErrParse,
		},
		{
			name:    "short id",
			records: []Raw{{ID: "T01", Phase: 1, Description: "x"}},
			want:    ErrParse,
		},
		{
			name: "duplicate id",
			records: []Raw{
				{ID: "T001", Phase: 1, Description: "x"},
				{ID: "T001", Phase: 1, Description: "y"},
			},
			want: ErrDuplicateTaskID,
		},
		{
			name:    "missing description",
			records: []Raw{{ID: "T001", Phase: 1}},
			want:    ErrParse,
		},
		{
			name:    "invalid phase",
			records: []Raw{{ID: "T001", Phase: 0, Description: "x"}},
			want:    ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.records, nil)
			if err == nil {
				t.Fatal("Parse should have failed")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusSkipped, true},
		{StatusPending, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusBlocked, true},
		{StatusInProgress, StatusSkipped, true},
		// Interrupted apply: no terminal outcome, back to pending.
		{StatusInProgress, StatusPending, true},
		{StatusInProgress, StatusInProgress, false},
		{StatusBlocked, StatusPending, true},
		{StatusBlocked, StatusCompleted, false},
		{StatusCompleted, StatusPending, false},
		{StatusSkipped, StatusPending, false},
	}

	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	// Blocked is recoverable, never terminal.
	if StatusBlocked.IsTerminal() {
		t.Error("blocked must not be terminal")
	}
	if !StatusCompleted.IsTerminal() || !StatusSkipped.IsTerminal() {
		t.Error("completed and skipped are terminal")
	}
	if StatusPending.IsTerminal() || StatusInProgress.IsTerminal() {
		t.Error("pending and in_progress are not terminal")
	}
}
