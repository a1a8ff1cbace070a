// Package git provides repository info plus the commit and push plumbing
// for recording applied tasks. All operations shell out to the git binary.
package git

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/task"
)

// Info describes the current state of a git repository.
type Info struct {
	Branch string
	Hash   string // short hash, 7 chars
	Dirty  bool
	Ahead  int
	Behind int
}

// runGit executes a git command in the given directory and returns trimmed
// stdout. Errors include git's stderr.
func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(dir string) bool {
	out, err := runGit(dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// GetInfo returns repository info for dir, or nil if dir is not a git
// repository.
func GetInfo(dir string) (*Info, error) {
	if !IsRepo(dir) {
		return nil, nil
	}

	info := &Info{}

	if branch, err := runGit(dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		info.Branch = branch
	}
	if hash, err := runGit(dir, "rev-parse", "--short=7", "HEAD"); err == nil {
		info.Hash = hash
	}
	if status, err := runGit(dir, "status", "--porcelain"); err == nil {
		info.Dirty = status != ""
	}

	// Ahead/behind only exist relative to a configured upstream.
	if counts, err := runGit(dir, "rev-list", "--left-right", "--count", "@{upstream}...HEAD"); err == nil {
		parts := strings.Fields(counts)
		if len(parts) == 2 {
			info.Behind, _ = strconv.Atoi(parts[0])
			info.Ahead, _ = strconv.Atoi(parts[1])
		}
	}

	return info, nil
}

// PushPolicy controls when applied work is pushed to the upstream.
type PushPolicy string

const (
	PushNever          PushPolicy = "never"
	PushAfterEachTask  PushPolicy = "after-each-task"
	PushAfterEachGroup PushPolicy = "after-each-group"
)

// Committer records applied tasks as commits, one commit per task, and
// pushes according to the configured policy.
type Committer struct {
	dir    string
	policy PushPolicy
}

// NewCommitter creates a Committer for the repository at dir.
func NewCommitter(dir string, policy PushPolicy) *Committer {
	if policy == "" {
		policy = PushNever
	}
	return &Committer{dir: dir, policy: policy}
}

// CommitTask stages the task's changed files and creates exactly one commit
// with the subject "[T001] description". Nothing is committed when the work
// tree has no staged changes for the task.
func (c *Committer) CommitTask(t *task.Task, filesChanged []string) error {
	if len(filesChanged) > 0 {
		args := append([]string{"add", "--"}, filesChanged...)
		if _, err := runGit(c.dir, args...); err != nil {
			return fmt.Errorf("stage files for %s: %w", t.ID, err)
		}
	} else {
		if _, err := runGit(c.dir, "add", "-A"); err != nil {
			return fmt.Errorf("stage changes for %s: %w", t.ID, err)
		}
	}

	// diff --cached --quiet exits 1 when something is staged.
	if _, err := runGit(c.dir, "diff", "--cached", "--quiet"); err == nil {
		logger.Debug("Task %s produced no staged changes, skipping commit", t.ID)
		return nil
	}

	msg := fmt.Sprintf("[%s] %s", t.ID, t.Description)
	if _, err := runGit(c.dir, "commit", "-m", msg); err != nil {
		return fmt.Errorf("commit %s: %w", t.ID, err)
	}

	logger.Info("Committed task %s", t.ID)
	return nil
}

// AfterTask pushes when the policy is after-each-task.
func (c *Committer) AfterTask() error {
	if c.policy != PushAfterEachTask {
		return nil
	}
	return c.push()
}

// AfterGroup pushes when the policy is after-each-group.
func (c *Committer) AfterGroup() error {
	if c.policy != PushAfterEachGroup {
		return nil
	}
	return c.push()
}

func (c *Committer) push() error {
	if _, err := runGit(c.dir, "push"); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	logger.Debug("Pushed to upstream")
	return nil
}
