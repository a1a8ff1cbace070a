package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mark3labs/taskwright/internal/task"
)

func writeWorker(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write worker: %v", err)
	}
	return path
}

func testTask() *task.Task {
	return &task.Task{
		ID:          "T001",
		Phase:       1,
		Description: "add request handler",
		FilePaths:   []string{"handler.go"},
		BlockedBy:   map[string]struct{}{},
		Blocks:      map[string]struct{}{},
	}
}

func TestCommandApplySuccess(t *testing.T) {
	bin := writeWorker(t, `cat > /dev/null
echo "working..."
echo '{"outcome":"success","files_changed":["handler.go","routes.go"]}'
`)

	var progress []string
	c := NewCommand(CommandConfig{
		Bin:     bin,
		WorkDir: t.TempDir(),
		OnText:  func(text string) { progress = append(progress, text) },
	})

	res, err := c.Apply(context.Background(), testTask())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !reflect.DeepEqual(res.FilesChanged, []string{"handler.go", "routes.go"}) {
		t.Errorf("FilesChanged = %v", res.FilesChanged)
	}
	if len(progress) != 1 || progress[0] != "working..." {
		t.Errorf("Progress lines = %v", progress)
	}
}

func TestCommandApplyReceivesTaskRecord(t *testing.T) {
	bin := writeWorker(t, `input=$(cat)
case "$input" in
  *'"id":"T001"'*) echo '{"outcome":"success"}' ;;
  *) echo '{"outcome":"failure","reason":"task record missing"}' ;;
esac
`)

	c := NewCommand(CommandConfig{Bin: bin, WorkDir: t.TempDir()})
	if _, err := c.Apply(context.Background(), testTask()); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
}

func TestCommandApplyFailure(t *testing.T) {
	bin := writeWorker(t, `cat > /dev/null
echo '{"outcome":"failure","reason":"tests failed"}'
`)

	c := NewCommand(CommandConfig{Bin: bin, WorkDir: t.TempDir()})
	_, err := c.Apply(context.Background(), testTask())
	if err == nil {
		t.Fatal("Apply should fail")
	}
	if !errors.Is(err, ErrTaskApplyFailure) {
		t.Errorf("Expected task apply failure, got: %v", err)
	}
	var applyErr *ApplyError
	if !errors.As(err, &applyErr) {
		t.Fatalf("Expected *ApplyError, got %T", err)
	}
	if applyErr.TaskID != "T001" || applyErr.Reason != "tests failed" {
		t.Errorf("Unexpected apply error: %+v", applyErr)
	}
}

func TestCommandApplyNoResult(t *testing.T) {
	bin := writeWorker(t, `cat > /dev/null
echo "did some things"
exit 0
`)

	c := NewCommand(CommandConfig{Bin: bin, WorkDir: t.TempDir()})
	if _, err := c.Apply(context.Background(), testTask()); err == nil {
		t.Fatal("Apply should fail when the worker reports no outcome")
	}
}

func TestCommandApplyWorkerCrash(t *testing.T) {
	bin := writeWorker(t, `cat > /dev/null
echo "something went wrong" >&2
exit 2
`)

	c := NewCommand(CommandConfig{Bin: bin, WorkDir: t.TempDir()})
	_, err := c.Apply(context.Background(), testTask())
	if err == nil {
		t.Fatal("Apply should surface a crashed worker")
	}
}

func TestCommandApplyLastResultWins(t *testing.T) {
	bin := writeWorker(t, `cat > /dev/null
echo '{"outcome":"failure","reason":"first attempt"}'
echo '{"outcome":"success","files_changed":["fixed.go"]}'
`)

	c := NewCommand(CommandConfig{Bin: bin, WorkDir: t.TempDir()})
	res, err := c.Apply(context.Background(), testTask())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !reflect.DeepEqual(res.FilesChanged, []string{"fixed.go"}) {
		t.Errorf("FilesChanged = %v", res.FilesChanged)
	}
}

func TestCommandApplyCancelledContext(t *testing.T) {
	bin := writeWorker(t, `cat > /dev/null
sleep 10
echo '{"outcome":"success"}'
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCommand(CommandConfig{Bin: bin, WorkDir: t.TempDir()})
	if _, err := c.Apply(ctx, testTask()); err == nil {
		t.Fatal("Apply should fail on cancelled context")
	}
}
