// Package units loads the list of failing units of work from a YAML file.
package units

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
)

// File is the on-disk shape of a unit list
type File struct {
	// BaseRef is the default baseline for failure attribution
	BaseRef string     `yaml:"base_ref"`
	Units   []UnitSpec `yaml:"units"`
}

// UnitSpec is one unit entry; zero-value fields inherit file defaults
type UnitSpec struct {
	ID      string   `yaml:"id"`
	Branch  string   `yaml:"branch"`
	BaseRef string   `yaml:"base_ref"`
	Command []string `yaml:"command"`
	Parser  string   `yaml:"parser"`
}

// Load reads and validates a unit list. Duplicate (branch, id) pairs are
// rejected: the scheduler runs each unit at most once per run.
func Load(path string) ([]*domain.UnitOfWork, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading unit list: %w", err)
	}
	return Parse(data)
}

// Parse decodes a unit list from YAML bytes
func Parse(data []byte) ([]*domain.UnitOfWork, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing unit list: %w", err)
	}
	if len(file.Units) == 0 {
		return nil, fmt.Errorf("unit list contains no units")
	}

	seen := make(map[string]bool)
	out := make([]*domain.UnitOfWork, 0, len(file.Units))
	for i, spec := range file.Units {
		baseRef := spec.BaseRef
		if baseRef == "" {
			baseRef = file.BaseRef
		}
		unit := &domain.UnitOfWork{
			ID:      spec.ID,
			Branch:  spec.Branch,
			BaseRef: baseRef,
			Command: spec.Command,
			Parser:  spec.Parser,
		}
		if err := unit.Validate(); err != nil {
			return nil, fmt.Errorf("unit %d (%q): %w", i, spec.ID, err)
		}
		if seen[unit.Key()] {
			return nil, fmt.Errorf("duplicate unit %q on branch %q", unit.ID, unit.Branch)
		}
		seen[unit.Key()] = true
		out = append(out, unit)
	}
	return out, nil
}
