package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.General.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.General.Concurrency)
	}
	if cfg.General.MaxIterations != 50 {
		t.Errorf("MaxIterations = %d, want 50", cfg.General.MaxIterations)
	}
	if cfg.History.MaxAttemptsPerUnit != 20 {
		t.Errorf("MaxAttemptsPerUnit = %d, want 20", cfg.History.MaxAttemptsPerUnit)
	}
	if cfg.History.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.History.RetentionDays)
	}
	if !cfg.General.SkipPreexisting {
		t.Error("SkipPreexisting should default to true")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[general]
repo_root = "/tmp/repo"
concurrency = 8
max_iterations = 10

[oracle]
model = "gpt-4o"

[budget]
max_transcript_tokens = 10000
retain_recent_turns = 4
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.General.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.General.Concurrency)
	}
	if cfg.Oracle.Model != "gpt-4o" {
		t.Errorf("Model = %s, want gpt-4o", cfg.Oracle.Model)
	}
	if cfg.Budget.RetainRecentTurns != 4 {
		t.Errorf("RetainRecentTurns = %d, want 4", cfg.Budget.RetainRecentTurns)
	}
	// Untouched sections keep defaults
	if cfg.History.MaxAttemptsPerUnit != 20 {
		t.Errorf("MaxAttemptsPerUnit = %d, want 20", cfg.History.MaxAttemptsPerUnit)
	}
}

func TestLoad_RejectsInvalidConcurrency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[general]
concurrency = 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() should reject concurrency = 0")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandPath("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("ExpandPath(~/x) = %s", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %s", got)
	}
}
