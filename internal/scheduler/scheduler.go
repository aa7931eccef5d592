// Package scheduler fans a batch of failing units out to a bounded set of
// concurrent repair workers and collects one terminal job per unit.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/fixloop"
)

// UnitRunner executes one full repair run for a unit in its own workspace
type UnitRunner interface {
	RunUnit(ctx context.Context, unit *domain.UnitOfWork) (*fixloop.Result, error)
}

// Report is the outcome of one scheduling run
type Report struct {
	Jobs      []*domain.Job
	Succeeded int
	Failed    int
	Skipped   int
}

// AllSucceeded reports whether every job reached a clean validation pass
func (r *Report) AllSucceeded() bool {
	return r.Failed == 0 && r.Skipped == 0
}

// Scheduler runs jobs with a fixed concurrency limit
type Scheduler struct {
	runner      UnitRunner
	concurrency int
	log         *slog.Logger
}

// New creates a scheduler. Concurrency below 1 is clamped to 1.
func New(runner UnitRunner, concurrency int, log *slog.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{runner: runner, concurrency: concurrency, log: log}
}

// Run executes one job per unit, at most `concurrency` at a time, and blocks
// until every job is terminal. Cancellation stops admitting new jobs; running
// jobs finish their current tool call and abort.
func (s *Scheduler) Run(ctx context.Context, units []*domain.UnitOfWork) *Report {
	jobs := make([]*domain.Job, len(units))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, unit := range units {
		job := &domain.Job{
			ID:     uuid.NewString(),
			Unit:   *unit,
			Status: domain.JobPending,
		}
		jobs[i] = job

		g.Go(func() error {
			s.runJob(ctx, job)
			return nil
		})
	}
	g.Wait()

	report := &Report{Jobs: jobs}
	for _, job := range jobs {
		// Every job must be terminal exactly once; a non-terminal job here
		// is a scheduler bug, surfaced as a failure rather than hidden.
		if !job.Status.Terminal() {
			job.Status = domain.JobFailed
			job.Failure = domain.FailureEnvironment
			job.Error = "job never reached a terminal state"
		}
		switch job.Status {
		case domain.JobSucceeded:
			report.Succeeded++
		case domain.JobSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}
	s.log.Info("run finished",
		"jobs", len(jobs),
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"skipped", report.Skipped)
	return report
}

func (s *Scheduler) runJob(ctx context.Context, job *domain.Job) {
	// A panicking worker must not take the scheduler down; its slot is
	// released by returning and the job ends failed.
	defer func() {
		if r := recover(); r != nil {
			s.finish(job, domain.JobFailed, domain.FailureEnvironment, fmt.Sprintf("worker panic: %v", r))
		}
	}()

	if ctx.Err() != nil {
		s.finish(job, domain.JobSkipped, domain.FailureNone, "cancelled before start")
		return
	}

	now := time.Now().UTC()
	job.StartedAt = &now
	job.Status = domain.JobRunning
	s.log.Info("job started", "job", job.ID, "unit", job.Unit.ID, "branch", job.Unit.Branch)

	result, err := s.runner.RunUnit(ctx, &job.Unit)
	if result != nil {
		job.Iterations = result.Iterations
		job.LastDiags = result.Diagnostics
	}

	switch {
	case err != nil && errors.Is(err, context.Canceled):
		s.finish(job, domain.JobFailed, domain.FailureNone, "aborted: "+err.Error())
	case err != nil:
		// Workspace and other infrastructure errors are never the unit's fault
		s.finish(job, domain.JobFailed, domain.FailureEnvironment, err.Error())
	case result.Outcome == fixloop.Succeeded:
		s.finish(job, domain.JobSucceeded, domain.FailureNone, "")
	case result.Outcome == fixloop.Exhausted:
		s.finish(job, domain.JobFailed, domain.FailureExhausted, "")
	case result.Outcome == fixloop.Abandoned:
		s.finish(job, domain.JobFailed, domain.FailureAbandoned, result.Reason)
	default:
		s.finish(job, domain.JobFailed, domain.FailureEnvironment, "aborted")
	}
}

func (s *Scheduler) finish(job *domain.Job, status domain.JobStatus, failure domain.FailureKind, errText string) {
	now := time.Now().UTC()
	job.FinishedAt = &now
	job.Status = status
	job.Failure = failure
	job.Error = errText

	if status == domain.JobSucceeded {
		s.log.Info("job succeeded", "job", job.ID, "unit", job.Unit.ID, "iterations", job.Iterations)
		return
	}
	s.log.Warn("job did not succeed",
		"job", job.ID,
		"unit", job.Unit.ID,
		"status", status,
		"failure", failure,
		"error", errText)
}
