package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mark3labs/taskwright/internal/task"
)

func setOf(t *testing.T, records []task.Raw) *task.Set {
	t.Helper()
	set, err := task.Parse(records, nil)
	require.NoError(t, err)
	return set
}

func TestCheckResumeMatchingState(t *testing.T) {
	set := setOf(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "a"},
	})

	st := NewState("demo")
	st.Statuses["T001"] = task.StatusCompleted

	warnings, err := CheckResume(st, set)
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestCheckResumeOrphanWithoutEdgesWarns(t *testing.T) {
	set := setOf(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "a"},
	})

	// T099 was persisted by an older plan revision; nothing references it.
	st := NewState("demo")
	st.Statuses["T001"] = task.StatusCompleted
	st.Statuses["T099"] = task.StatusCompleted

	warnings, err := CheckResume(st, set)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "T099")
}

func TestCheckResumeLiveEdgeToMissingTaskIsFatal(t *testing.T) {
	// T099 was dropped from the plan but T001 still declares it, modeling a
	// plan that shrank between runs.
	set := setOf(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "a", BlockedBy: []string{"T099"}},
	})

	st := NewState("demo")
	st.Statuses["T099"] = task.StatusInProgress

	_, err := CheckResume(st, set)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrResumeMismatch))

	var mismatch *ResumeMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, "T099", mismatch.TaskID)
	require.Equal(t, []string{"T001"}, mismatch.ReferencedBy)
}

func TestCheckResumeForceUnblockedEdgeIsNotLive(t *testing.T) {
	set := setOf(t, []task.Raw{
		{ID: "T001", Phase: 1, Description: "a", BlockedBy: []string{"T099"}},
	})

	st := NewState("demo")
	st.Statuses["T099"] = task.StatusInProgress
	st.Unblocked["T001"] = map[string]struct{}{"T099": {}}

	warnings, err := CheckResume(st, set)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}
