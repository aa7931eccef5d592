package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration. It is built once at startup
// and injected into the scheduler; nothing reads it through package state.
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Oracle        OracleConfig        `toml:"oracle"`
	Budget        BudgetConfig        `toml:"budget"`
	History       HistoryConfig       `toml:"history"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	RepoRoot      string `toml:"repo_root"`
	WorkspaceDir  string `toml:"workspace_dir"`
	DepCacheDir   string `toml:"dep_cache_dir"` // shared read-only dependency artifacts
	DatabasePath  string `toml:"database_path"`
	Concurrency   int    `toml:"concurrency"`
	MaxIterations int    `toml:"max_iterations"`
	// CommandTimeoutSeconds bounds every validation or tool shell command
	CommandTimeoutSeconds int `toml:"command_timeout_seconds"`
	// FormatCommand is run over every file the oracle writes, argv form
	FormatCommand []string `toml:"format_command"`
	// SkipPreexisting filters out diagnostics the unit did not cause
	SkipPreexisting bool `toml:"skip_preexisting"`
}

// OracleConfig holds reasoning oracle settings
type OracleConfig struct {
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	BaseURL        string `toml:"base_url"` // OpenAI-compatible endpoint override
	APIKeyEnv      string `toml:"api_key_env"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// BudgetConfig holds transcript budget settings
type BudgetConfig struct {
	// MaxTranscriptTokens is the compaction threshold
	MaxTranscriptTokens int `toml:"max_transcript_tokens"`
	// RetainRecentTurns is how many trailing turns survive compaction
	RetainRecentTurns int `toml:"retain_recent_turns"`
}

// HistoryConfig holds attempt history retention settings
type HistoryConfig struct {
	MaxAttemptsPerUnit int `toml:"max_attempts_per_unit"`
	RetentionDays      int `toml:"retention_days"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			WorkspaceDir:          filepath.Join(home, ".claude-fix", "workspaces"),
			DatabasePath:          filepath.Join(home, ".claude-fix", "history.db"),
			Concurrency:           3,
			MaxIterations:         50,
			CommandTimeoutSeconds: 300,
			SkipPreexisting:       true,
		},
		Oracle: OracleConfig{
			Model:          "gpt-4o-mini",
			MaxTokens:      8192,
			APIKeyEnv:      "OPENAI_API_KEY",
			TimeoutSeconds: 120,
		},
		Budget: BudgetConfig{
			MaxTranscriptTokens: 48000,
			RetainRecentTurns:   8,
		},
		History: HistoryConfig{
			MaxAttemptsPerUnit: 20,
			RetentionDays:      7,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.RepoRoot = ExpandPath(cfg.General.RepoRoot)
	cfg.General.WorkspaceDir = ExpandPath(cfg.General.WorkspaceDir)
	cfg.General.DepCacheDir = ExpandPath(cfg.General.DepCacheDir)
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)

	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints that TOML decoding cannot
func (c *Config) Validate() error {
	if c.General.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.General.Concurrency)
	}
	if c.General.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", c.General.MaxIterations)
	}
	if c.Budget.RetainRecentTurns < 1 {
		return fmt.Errorf("retain_recent_turns must be >= 1, got %d", c.Budget.RetainRecentTurns)
	}
	if c.History.MaxAttemptsPerUnit < 1 {
		return fmt.Errorf("max_attempts_per_unit must be >= 1, got %d", c.History.MaxAttemptsPerUnit)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claude-fix", "config.toml")
}
