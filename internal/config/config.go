// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for taskwright.
type Config struct {
	Worker      string `mapstructure:"worker" yaml:"worker"`
	Mode        string `mapstructure:"mode" yaml:"mode"`
	MaxParallel int    `mapstructure:"max_parallel" yaml:"max_parallel"`
	GroupSize   int    `mapstructure:"group_size" yaml:"group_size"`
	AutoCommit  bool   `mapstructure:"auto_commit" yaml:"auto_commit"`
	PushPolicy  string `mapstructure:"push_policy" yaml:"push_policy"`
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("taskwright")

	// Set defaults (worker has no default - it's required for run)
	v.SetDefault("mode", "sequential")
	v.SetDefault("max_parallel", 4)
	v.SetDefault("group_size", 5)
	v.SetDefault("auto_commit", true)
	v.SetDefault("push_policy", "never")
	v.SetDefault("data_dir", ".taskwright")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	// Setup ENV binding with TASKWRIGHT_ prefix
	v.SetEnvPrefix("TASKWRIGHT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit ENV bindings for better bool/int parsing
	bindings := map[string]string{
		"worker":       "TASKWRIGHT_WORKER",
		"mode":         "TASKWRIGHT_MODE",
		"max_parallel": "TASKWRIGHT_MAX_PARALLEL",
		"group_size":   "TASKWRIGHT_GROUP_SIZE",
		"auto_commit":  "TASKWRIGHT_AUTO_COMMIT",
		"push_policy":  "TASKWRIGHT_PUSH_POLICY",
		"data_dir":     "TASKWRIGHT_DATA_DIR",
		"log_level":    "TASKWRIGHT_LOG_LEVEL",
		"log_file":     "TASKWRIGHT_LOG_FILE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	// Load global config first (if exists)
	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	// Merge project config on top (if exists)
	projectPath := ProjectPath()
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that Viper cannot express.
func (c *Config) Validate() error {
	switch c.Mode {
	case "sequential", "batched":
	default:
		return fmt.Errorf("invalid mode: %s (must be sequential or batched)", c.Mode)
	}

	switch c.PushPolicy {
	case "never", "after-each-task", "after-each-group":
	default:
		return fmt.Errorf("invalid push_policy: %s (must be never, after-each-task, or after-each-group)", c.PushPolicy)
	}

	if c.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be >= 1 (got %d)", c.MaxParallel)
	}

	// Group size cap is bounded to keep batches reviewable.
	if c.GroupSize < 5 || c.GroupSize > 7 {
		return fmt.Errorf("group_size must be between 5 and 7 (got %d)", c.GroupSize)
	}

	return nil
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/taskwright/taskwright.yml or $XDG_CONFIG_HOME/taskwright/taskwright.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskwright", "taskwright.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "taskwright", "taskwright.yml")
}

// ProjectPath returns the project-local config path.
// Returns ./taskwright.yml in the current working directory.
func ProjectPath() string {
	return "taskwright.yml"
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(ProjectPath(), data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
