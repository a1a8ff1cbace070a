package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mark3labs/taskwright/internal/logger"
	"github.com/mark3labs/taskwright/internal/task"
)

// Command runs an external worker executable once per task. The task record
// is written to the worker's stdin as JSON; the worker reports its outcome
// as a single JSON object on stdout:
//
//	{"outcome":"success","files_changed":["a.go","b.go"]}
//	{"outcome":"failure","reason":"tests failed"}
//
// Any other stdout lines are treated as worker progress output.
type Command struct {
	bin     string
	workDir string
	onText  func(text string)
}

// CommandConfig holds configuration for creating a Command runner.
type CommandConfig struct {
	Bin     string            // worker executable
	WorkDir string            // working directory for the worker
	OnText  func(text string) // callback for progress output (optional)
}

// NewCommand creates a Command runner.
func NewCommand(cfg CommandConfig) *Command {
	return &Command{
		bin:     cfg.Bin,
		workDir: cfg.WorkDir,
		onText:  cfg.OnText,
	}
}

// taskRecord is the wire shape written to the worker's stdin.
type taskRecord struct {
	ID          string   `json:"id"`
	Phase       int      `json:"phase"`
	Story       string   `json:"story,omitempty"`
	Parallel    bool     `json:"parallel,omitempty"`
	Description string   `json:"description"`
	Files       []string `json:"files,omitempty"`
	BlockedBy   []string `json:"blocked_by,omitempty"`
}

// workerResult is the wire shape read from the worker's stdout.
type workerResult struct {
	Outcome      string   `json:"outcome"`
	Reason       string   `json:"reason,omitempty"`
	FilesChanged []string `json:"files_changed,omitempty"`
}

// Apply implements Runner by spawning the worker subprocess for one task.
func (c *Command) Apply(ctx context.Context, t *task.Task) (Result, error) {
	logger.Debug("Applying task %s via worker %s", t.ID, c.bin)

	record, err := json.Marshal(taskRecord{
		ID:          t.ID,
		Phase:       t.Phase,
		Story:       t.StoryID,
		Parallel:    t.Parallel,
		Description: t.Description,
		Files:       t.FilePaths,
		BlockedBy:   t.BlockedByIDs(),
	})
	if err != nil {
		return Result{}, &ApplyError{TaskID: t.ID, Reason: fmt.Sprintf("marshal task: %v", err)}
	}

	cmd := exec.CommandContext(ctx, c.bin, "apply")
	cmd.Dir = c.workDir
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, &ApplyError{TaskID: t.ID, Reason: fmt.Sprintf("stdin pipe: %v", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, &ApplyError{TaskID: t.ID, Reason: fmt.Sprintf("stdout pipe: %v", err)}
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, &ApplyError{TaskID: t.ID, Reason: fmt.Sprintf("start worker: %v", err)}
	}

	if _, err := io.WriteString(stdin, string(record)); err != nil {
		stdin.Close()
		cmd.Wait()
		return Result{}, &ApplyError{TaskID: t.ID, Reason: fmt.Sprintf("write task record: %v", err)}
	}
	stdin.Close()

	// The last JSON object line wins; everything before it is progress
	// output from the worker.
	var last workerResult
	seenResult := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var res workerResult
		if strings.HasPrefix(line, "{") && json.Unmarshal([]byte(line), &res) == nil && res.Outcome != "" {
			last = res
			seenResult = true
			continue
		}
		if c.onText != nil {
			c.onText(line)
		}
	}

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return Result{}, &ApplyError{TaskID: t.ID, Reason: ctx.Err().Error()}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, &ApplyError{TaskID: t.ID, Reason: fmt.Sprintf("read worker output: %v", err)}
	}

	if !seenResult {
		reason := "worker produced no result"
		if waitErr != nil {
			reason = fmt.Sprintf("worker exited: %v", waitErr)
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			reason += ": " + s
		}
		return Result{}, &ApplyError{TaskID: t.ID, Reason: reason}
	}

	switch last.Outcome {
	case "success":
		if waitErr != nil {
			return Result{}, &ApplyError{TaskID: t.ID, Reason: fmt.Sprintf("worker reported success but exited: %v", waitErr)}
		}
		logger.Debug("Task %s applied, %d files changed", t.ID, len(last.FilesChanged))
		return Result{FilesChanged: last.FilesChanged}, nil
	case "failure":
		reason := last.Reason
		if reason == "" {
			reason = "unspecified failure"
		}
		return Result{}, &ApplyError{TaskID: t.ID, Reason: reason}
	default:
		return Result{}, &ApplyError{TaskID: t.ID, Reason: fmt.Sprintf("unknown outcome %q", last.Outcome)}
	}
}
