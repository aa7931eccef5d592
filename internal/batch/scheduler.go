package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RunFunc executes one scheduled repair run
type RunFunc func(ctx context.Context, entry Entry) error

// Scheduler fires repair runs on their cron schedules. At most one run per
// entry is in flight at a time; a schedule tick that lands during a running
// entry is dropped, not queued.
type Scheduler struct {
	entries map[string]Entry
	parser  cron.Parser
	log     *slog.Logger

	mu      sync.RWMutex
	lastRun map[string]time.Time
	running map[string]bool
}

// NewScheduler creates a batch scheduler from validated entries
func NewScheduler(entries []Entry, log *slog.Logger) (*Scheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		entries: make(map[string]Entry),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		log:     log,
		lastRun: make(map[string]time.Time),
		running: make(map[string]bool),
	}
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		s.entries[entry.Name] = entry
	}
	return s, nil
}

// NextRun returns the next scheduled time for an entry
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	sched, err := s.parser.Parse(entry.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// ShouldRun reports whether an entry is due and not already running
func (s *Scheduler) ShouldRun(name string, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[name]
	if !ok || s.running[name] {
		return false
	}
	sched, err := s.parser.Parse(entry.Cron)
	if err != nil {
		return false
	}

	lastRun := s.lastRun[name]
	if lastRun.IsZero() {
		lastRun = now.Add(-24 * time.Hour)
	}
	return now.After(sched.Next(lastRun))
}

// Names returns all configured entry names
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) markRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

func (s *Scheduler) markComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = time.Now()
}

// Run drives the schedule until the context is cancelled. Each due entry
// runs in its own goroutine, bounded by the entry's MaxDuration.
func (s *Scheduler) Run(ctx context.Context, run RunFunc) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case now := <-ticker.C:
			for name := range s.entries {
				if !s.ShouldRun(name, now) {
					continue
				}
				entry := s.entries[name]
				s.markRunning(name)
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer s.markComplete(entry.Name)

					runCtx, cancel := context.WithTimeout(ctx, entry.MaxDuration)
					defer cancel()

					s.log.Info("scheduled run starting", "batch", entry.Name)
					if err := run(runCtx, entry); err != nil {
						s.log.Error("scheduled run failed", "batch", entry.Name, "error", err)
						return
					}
					s.log.Info("scheduled run finished", "batch", entry.Name)
				}()
			}
		}
	}
}
