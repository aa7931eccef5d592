package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/fixloop"
)

// fakeRunner maps unit IDs to canned results and tracks concurrency
type fakeRunner struct {
	results map[string]*fixloop.Result
	errs    map[string]error
	delay   time.Duration
	onRun   func(unit *domain.UnitOfWork)

	mu      sync.Mutex
	active  int
	maxSeen int
	calls   atomic.Int64
}

func (r *fakeRunner) RunUnit(ctx context.Context, unit *domain.UnitOfWork) (*fixloop.Result, error) {
	r.mu.Lock()
	r.active++
	if r.active > r.maxSeen {
		r.maxSeen = r.active
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}()

	r.calls.Add(1)
	if r.onRun != nil {
		r.onRun(unit)
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	if err, ok := r.errs[unit.ID]; ok {
		return nil, err
	}
	if res, ok := r.results[unit.ID]; ok {
		return res, nil
	}
	return &fixloop.Result{Outcome: fixloop.Succeeded}, nil
}

func units(n int) []*domain.UnitOfWork {
	out := make([]*domain.UnitOfWork, n)
	for i := range out {
		out[i] = &domain.UnitOfWork{
			ID:      fmt.Sprintf("unit-%02d", i),
			Branch:  "feature/x",
			Command: []string{"true"},
		}
	}
	return out
}

func TestScheduler_RespectsConcurrencyLimit(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	s := New(runner, 2, nil)

	report := s.Run(context.Background(), units(8))

	if runner.maxSeen > 2 {
		t.Errorf("observed %d concurrent jobs, limit is 2", runner.maxSeen)
	}
	if report.Succeeded != 8 {
		t.Errorf("succeeded = %d, want 8", report.Succeeded)
	}
}

func TestScheduler_EveryJobTerminalExactlyOnce(t *testing.T) {
	runner := &fakeRunner{
		results: map[string]*fixloop.Result{
			"unit-01": {Outcome: fixloop.Exhausted, Iterations: 50},
			"unit-02": {Outcome: fixloop.Abandoned, Reason: "cannot be fixed here"},
		},
		errs: map[string]error{
			"unit-03": errors.New("worktree add failed"),
		},
	}
	s := New(runner, 4, nil)

	report := s.Run(context.Background(), units(5))

	if got := len(report.Jobs); got != 5 {
		t.Fatalf("report has %d jobs, want 5", got)
	}
	for _, job := range report.Jobs {
		if !job.Status.Terminal() {
			t.Errorf("job %s ended non-terminal: %s", job.Unit.ID, job.Status)
		}
	}
	if report.Succeeded != 2 || report.Failed != 3 {
		t.Errorf("report = %d succeeded / %d failed, want 2/3", report.Succeeded, report.Failed)
	}
	if runner.calls.Load() != 5 {
		t.Errorf("runner called %d times, want 5", runner.calls.Load())
	}

	byUnit := make(map[string]*domain.Job)
	for _, job := range report.Jobs {
		byUnit[job.Unit.ID] = job
	}
	if byUnit["unit-01"].Failure != domain.FailureExhausted {
		t.Errorf("unit-01 failure = %q, want exhausted", byUnit["unit-01"].Failure)
	}
	if byUnit["unit-02"].Failure != domain.FailureAbandoned {
		t.Errorf("unit-02 failure = %q, want abandoned", byUnit["unit-02"].Failure)
	}
	if byUnit["unit-03"].Failure != domain.FailureEnvironment || byUnit["unit-03"].Error == "" {
		t.Errorf("unit-03 = %+v, want environment failure with error text", byUnit["unit-03"])
	}
}

func TestScheduler_AbandonedIsNotExhausted(t *testing.T) {
	runner := &fakeRunner{
		results: map[string]*fixloop.Result{
			"unit-00": {Outcome: fixloop.Abandoned, Reason: "upstream bug", Iterations: 3},
		},
	}
	report := New(runner, 1, nil).Run(context.Background(), units(1))

	job := report.Jobs[0]
	if job.Failure != domain.FailureAbandoned {
		t.Errorf("failure = %q, want abandoned", job.Failure)
	}
	if job.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", job.Iterations)
	}
}

func TestScheduler_CancellationSkipsPendingJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{
		onRun: func(*domain.UnitOfWork) { cancel() },
	}
	s := New(runner, 1, nil)

	report := s.Run(ctx, units(4))

	if runner.calls.Load() != 1 {
		t.Errorf("runner called %d times after cancellation, want 1", runner.calls.Load())
	}
	if report.Skipped != 3 {
		t.Errorf("skipped = %d, want 3", report.Skipped)
	}
	for _, job := range report.Jobs {
		if !job.Status.Terminal() {
			t.Errorf("job %s ended non-terminal after cancellation", job.Unit.ID)
		}
	}
}

func TestScheduler_WorkerPanicDoesNotPoisonRun(t *testing.T) {
	runner := &fakeRunner{
		onRun: func(unit *domain.UnitOfWork) {
			if unit.ID == "unit-01" {
				panic("boom")
			}
		},
	}
	s := New(runner, 2, nil)

	report := s.Run(context.Background(), units(3))

	if report.Failed != 1 || report.Succeeded != 2 {
		t.Errorf("report = %d failed / %d succeeded, want 1/2", report.Failed, report.Succeeded)
	}
	for _, job := range report.Jobs {
		if job.Unit.ID == "unit-01" && job.Failure != domain.FailureEnvironment {
			t.Errorf("panicked job failure = %q, want environment", job.Failure)
		}
	}
}

func TestScheduler_ResultIndependentOfConcurrency(t *testing.T) {
	results := map[string]*fixloop.Result{
		"unit-01": {Outcome: fixloop.Exhausted},
		"unit-03": {Outcome: fixloop.Abandoned, Reason: "r"},
	}

	statuses := func(concurrency int) map[string]domain.JobStatus {
		runner := &fakeRunner{results: results}
		report := New(runner, concurrency, nil).Run(context.Background(), units(5))
		out := make(map[string]domain.JobStatus)
		for _, job := range report.Jobs {
			out[job.Unit.ID] = job.Status
		}
		return out
	}

	serial := statuses(1)
	parallel := statuses(3)
	for id, status := range serial {
		if parallel[id] != status {
			t.Errorf("unit %s: status %q at c=1 but %q at c=3", id, status, parallel[id])
		}
	}
}
