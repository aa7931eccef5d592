// Package report aggregates finished repair jobs into run statistics and
// renders the end-of-run summary.
package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/scheduler"
)

// Collector accumulates job completions across runs of one process
type Collector struct {
	mu          sync.RWMutex
	completions []completion
}

type completion struct {
	Unit        string
	Status      domain.JobStatus
	Duration    time.Duration
	Iterations  int
	CompletedAt time.Time
}

// Metrics holds aggregated completion statistics
type Metrics struct {
	Succeeded       int
	Failed          int
	Skipped         int
	TotalIterations int
	AvgDuration     time.Duration
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// RecordJob records one terminal job
func (c *Collector) RecordJob(job *domain.Job) {
	var duration time.Duration
	if job.StartedAt != nil && job.FinishedAt != nil {
		duration = job.FinishedAt.Sub(*job.StartedAt)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions = append(c.completions, completion{
		Unit:        job.Unit.ID,
		Status:      job.Status,
		Duration:    duration,
		Iterations:  job.Iterations,
		CompletedAt: time.Now(),
	})
}

// RecordReport records every job of a finished run
func (c *Collector) RecordReport(r *scheduler.Report) {
	for _, job := range r.Jobs {
		c.RecordJob(job)
	}
}

// Metrics returns aggregated statistics over all recorded jobs
func (c *Collector) Metrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var m Metrics
	var totalDuration time.Duration
	var timed int
	for _, done := range c.completions {
		switch done.Status {
		case domain.JobSucceeded:
			m.Succeeded++
		case domain.JobSkipped:
			m.Skipped++
		default:
			m.Failed++
		}
		m.TotalIterations += done.Iterations
		if done.Duration > 0 {
			totalDuration += done.Duration
			timed++
		}
	}
	if timed > 0 {
		m.AvgDuration = totalDuration / time.Duration(timed)
	}
	return m
}

// RecentUnits returns units that completed within the given window
func (c *Collector) RecentUnits(since time.Duration) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cutoff := time.Now().Add(-since)
	var out []string
	for _, done := range c.completions {
		if done.CompletedAt.After(cutoff) {
			out = append(out, done.Unit)
		}
	}
	return out
}

// Format renders a run report as a human-readable summary, one line per job
func Format(r *scheduler.Report) string {
	var b strings.Builder
	for _, job := range r.Jobs {
		switch {
		case job.Status == domain.JobSucceeded:
			fmt.Fprintf(&b, "  fixed    %s (%d iterations)\n", job.Unit.ID, job.Iterations)
		case job.Status == domain.JobSkipped:
			fmt.Fprintf(&b, "  skipped  %s\n", job.Unit.ID)
		case job.Failure == domain.FailureAbandoned:
			fmt.Fprintf(&b, "  unfixable %s: %s\n", job.Unit.ID, job.Error)
		case job.Failure == domain.FailureExhausted:
			fmt.Fprintf(&b, "  gave up  %s after %d iterations (%d diagnostics left)\n",
				job.Unit.ID, job.Iterations, len(job.LastDiags))
		default:
			fmt.Fprintf(&b, "  error    %s: %s\n", job.Unit.ID, job.Error)
		}
	}
	fmt.Fprintf(&b, "%d fixed, %d failed, %d skipped\n", r.Succeeded, r.Failed, r.Skipped)
	return b.String()
}
