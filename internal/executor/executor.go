// Package executor runs one unit's repair attempt end to end: workspace
// acquisition, failure attribution, the fix loop itself, and teardown.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/attribution"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/budget"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/config"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/diagnose"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/fixloop"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/history"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/oracle"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/prompts"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/workspace"
)

// Executor wires the per-unit collaborators around the fix loop. One
// Executor serves all jobs of a run; each RunUnit call gets a fresh
// workspace and a fresh loop.
type Executor struct {
	cfg        *config.Config
	workspaces *workspace.Manager
	oracle     oracle.Oracle
	store      *history.Store
	prompts    *prompts.Loader
	log        *slog.Logger
}

// New creates an executor. store may be nil to run without cross-run memory.
func New(cfg *config.Config, workspaces *workspace.Manager, llm oracle.Oracle, store *history.Store, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		cfg:        cfg,
		workspaces: workspaces,
		oracle:     llm,
		store:      store,
		prompts:    prompts.DefaultLoader(cfg.General.RepoRoot),
		log:        log,
	}
}

// RunUnit acquires an isolated workspace for the unit, runs the fix loop in
// it and releases the workspace afterwards whatever the outcome. Changes
// survive only on the workspace branch; the primary checkout is never
// touched.
func (e *Executor) RunUnit(ctx context.Context, unit *domain.UnitOfWork) (*fixloop.Result, error) {
	ws, err := e.workspaces.Acquire(ctx, unit.ID, unit.Branch)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := e.workspaces.Release(ws); err != nil {
			e.log.Warn("workspace release failed", "unit", unit.ID, "error", err)
		}
	}()

	timeout := time.Duration(e.cfg.General.CommandTimeoutSeconds) * time.Second

	var hist fixloop.History
	if e.store != nil {
		hist = e.store
	}

	// Without a base ref there is no baseline to attribute failures against
	var classifier *attribution.Classifier
	if e.cfg.General.SkipPreexisting && unit.BaseRef != "" {
		classifier = attribution.NewClassifier(ctx, ws.Path, unit.BaseRef)
	}

	loop, err := fixloop.New(fixloop.Options{
		Unit:         unit,
		WorkspaceDir: ws.Path,
		Oracle:       e.oracle,
		Validator:    diagnose.NewRunner(timeout),
		History:      hist,
		Classifier:   classifier,
		Tracker: budget.NewTracker(budget.CharEstimator{},
			e.cfg.Budget.MaxTranscriptTokens, e.cfg.Budget.RetainRecentTurns),
		Tools:         fixloop.NewToolExecutor(ws.Path, e.cfg.General.FormatCommand, timeout),
		Prompts:       e.prompts,
		MaxIterations: e.cfg.General.MaxIterations,
		Log:           e.log,
	})
	if err != nil {
		return nil, err
	}
	return loop.Run(ctx)
}
