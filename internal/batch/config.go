// Package batch runs scheduled, unattended repair runs from cron expressions.
package batch

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Entry is one scheduled repair run
type Entry struct {
	Name             string        `toml:"name"`
	Cron             string        `toml:"cron"`
	UnitsFile        string        `toml:"units_file"`
	MaxDuration      time.Duration `toml:"max_duration"`
	NotifyOnComplete bool          `toml:"notify_on_complete"`
}

// ScheduleConfig holds all scheduled entries
type ScheduleConfig struct {
	Entries []Entry `toml:"batch"`
}

// Validate checks the entry and fills defaults
func (e *Entry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if e.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if e.UnitsFile == "" {
		return fmt.Errorf("units_file is required")
	}
	if e.MaxDuration <= 0 {
		e.MaxDuration = 4 * time.Hour
	}
	return nil
}

// ParseCron parses a standard five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// LoadScheduleConfig loads the schedule from a TOML file. A missing file is
// an empty schedule, not an error.
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Entries {
		if err := cfg.Entries[i].Validate(); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}
	return &cfg, nil
}
