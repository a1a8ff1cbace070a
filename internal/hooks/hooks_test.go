package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecute(t *testing.T) {
	ctx := context.Background()
	workDir := t.TempDir()
	vars := Variables{Run: "my-feature", Task: "T001", Phase: "2"}

	tests := []struct {
		name     string
		hook     *HookConfig
		expected string
	}{
		{
			name:     "nil hook",
			hook:     nil,
			expected: "",
		},
		{
			name:     "empty command",
			hook:     &HookConfig{Command: ""},
			expected: "",
		},
		{
			name:     "plain command",
			hook:     &HookConfig{Command: "echo 'hello'", Timeout: 5},
			expected: "hello\n",
		},
		{
			name:     "variable expansion",
			hook:     &HookConfig{Command: "echo '{{run}} {{task}} phase {{phase}}'", Timeout: 5},
			expected: "my-feature T001 phase 2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := Execute(ctx, tt.hook, workDir, vars)
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if output != tt.expected {
				t.Errorf("Execute() output = %q, expected %q", output, tt.expected)
			}
		})
	}
}

func TestExecute_FailureIsGraceful(t *testing.T) {
	output, err := Execute(context.Background(), &HookConfig{Command: "exit 3", Timeout: 5}, t.TempDir(), Variables{})
	if err != nil {
		t.Fatalf("Execute() error = %v, expected graceful degradation", err)
	}
	if !strings.Contains(output, "[Hook command failed") {
		t.Errorf("Execute() output = %q, expected failure marker", output)
	}
}

func TestExecute_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, &HookConfig{Command: "echo 'test'", Timeout: 5}, t.TempDir(), Variables{})
	if err == nil {
		t.Error("Execute() expected error for cancelled context, got nil")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg, err := LoadConfig(t.TempDir())
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg != nil {
			t.Error("LoadConfig() expected nil config for missing file")
		}
	})

	t.Run("valid config", func(t *testing.T) {
		dir := t.TempDir()
		data := "version: 1\nhooks:\n  pre_task:\n    command: echo pre\n  post_task:\n    command: echo post\n    timeout: 10\n"
		if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(data), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := LoadConfig(dir)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg == nil {
			t.Fatal("LoadConfig() returned nil config")
		}
		if cfg.Hooks.PreTask == nil || cfg.Hooks.PreTask.Command != "echo pre" {
			t.Errorf("Unexpected pre_task hook: %+v", cfg.Hooks.PreTask)
		}
		if cfg.Hooks.PostTask == nil || cfg.Hooks.PostTask.Timeout != 10 {
			t.Errorf("Unexpected post_task hook: %+v", cfg.Hooks.PostTask)
		}
	})

	t.Run("malformed config", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("hooks: ["), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := LoadConfig(dir); err == nil {
			t.Error("LoadConfig() expected parse error")
		}
	})
}
