// Package fixloop drives one repair conversation between a failing unit of
// work and the reasoning oracle until the unit validates cleanly, the
// iteration budget runs out, or the oracle declares the unit unfixable.
package fixloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/attribution"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/budget"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/diagnose"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/history"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/oracle"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/prompts"
)

// Outcome is the terminal state of one loop run
type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Exhausted Outcome = "exhausted"
	Abandoned Outcome = "abandoned"
	Aborted   Outcome = "aborted"
)

// Validator re-runs a unit's validation command and parses its diagnostics
type Validator interface {
	Run(ctx context.Context, dir string, unit *domain.UnitOfWork) ([]domain.Diagnostic, error)
}

// History is the slice of the attempt store the loop needs
type History interface {
	Query(branch, unit string) ([]domain.Attempt, error)
	Record(attempt *domain.Attempt) error
}

// Result is what one loop run produced. Attempt is always set: a run records
// exactly one attempt no matter how it ends.
type Result struct {
	Outcome     Outcome
	Attempt     *domain.Attempt
	Iterations  int
	Diagnostics []domain.Diagnostic // remaining after the run, empty on success
	Reason      string              // oracle's reason when abandoned
}

// Options wires one loop run
type Options struct {
	Unit          *domain.UnitOfWork
	WorkspaceDir  string
	Oracle        oracle.Oracle
	Validator     Validator
	History       History                 // optional, nil disables cross-run memory
	Classifier    *attribution.Classifier // optional, nil disables pre-existing filtering
	Tracker       *budget.Tracker
	Tools         *ToolExecutor
	Prompts       *prompts.Loader
	MaxIterations int
	Log           *slog.Logger
}

// Loop is a single-use fix conversation for one unit in one workspace
type Loop struct {
	opts       Options
	log        *slog.Logger
	transcript *oracle.Transcript

	iterations    int
	toolCalls     int
	lastAssistant string
	before        []domain.Diagnostic
	last          []domain.Diagnostic
}

// New prepares a loop run. The caller owns workspace acquisition and release.
func New(opts Options) (*Loop, error) {
	if opts.Unit == nil {
		return nil, errors.New("fixloop: unit is required")
	}
	if opts.Oracle == nil || opts.Validator == nil || opts.Tools == nil {
		return nil, errors.New("fixloop: oracle, validator and tools are required")
	}
	if opts.Prompts == nil {
		opts.Prompts = prompts.NewLoader()
	}
	if opts.Tracker == nil {
		opts.Tracker = budget.NewTracker(nil, 0, 8)
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = 50
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		opts: opts,
		log:  log.With("unit", opts.Unit.ID, "branch", opts.Unit.Branch),
	}, nil
}

// Run drives the loop to a terminal state. The returned error is non-nil
// only for infrastructure failures and cancellation; Exhausted and Abandoned
// are ordinary results.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	system, err := l.opts.Prompts.BuildSystemPrompt()
	if err != nil {
		return nil, err
	}
	l.transcript = oracle.NewTranscript([]oracle.Turn{
		{Role: oracle.RoleSystem, Content: system},
	})

	for {
		// Cancellation is honored here, never mid tool call
		if err := ctx.Err(); err != nil {
			return l.finish(Aborted, "run cancelled"), err
		}
		if l.iterations >= l.opts.MaxIterations {
			l.log.Info("iteration budget exhausted", "iterations", l.iterations)
			return l.finish(Exhausted, ""), nil
		}

		diags, err := l.probe(ctx)
		if err != nil {
			if errors.Is(err, diagnose.ErrTimeout) {
				// Transient: costs an iteration, then the probe retries
				l.iterations++
				l.transcript.Append(oracle.Turn{
					Role:    oracle.RoleUser,
					Content: "The validation command timed out. It will be retried.",
				})
				continue
			}
			result := l.finish(Aborted, err.Error())
			return result, fmt.Errorf("validation run: %w", err)
		}

		l.last = diags
		if len(diags) == 0 {
			l.log.Info("unit validates cleanly", "iterations", l.iterations)
			return l.finish(Succeeded, ""), nil
		}
		l.iterations++

		if err := l.appendDiagnostics(diags); err != nil {
			result := l.finish(Aborted, err.Error())
			return result, err
		}

		decision, err := l.decide(ctx)
		if err != nil {
			// Transient oracle failures are retried on the next iteration
			l.log.Warn("oracle call failed", "error", err)
			l.transcript.Append(oracle.Turn{
				Role:    oracle.RoleUser,
				Content: "The previous request failed and was not received. Continue.",
			})
			continue
		}

		if decision.Unfixable {
			l.log.Info("oracle abandoned unit", "reason", decision.Message)
			return l.finish(Abandoned, decision.Message), nil
		}

		if decision.Tool == nil {
			l.lastAssistant = decision.Message
			l.transcript.Append(oracle.Turn{Role: oracle.RoleAssistant, Content: decision.Message})
			continue
		}

		l.transcript.Append(oracle.Turn{
			Role:       oracle.RoleAssistant,
			ToolCall:   decision.Tool,
			ToolCallID: decision.ToolCallID,
			ToolName:   decision.ToolName,
		})
		result := l.opts.Tools.Execute(decision.Tool)
		l.toolCalls++
		l.transcript.Append(oracle.Turn{
			Role:       oracle.RoleTool,
			Content:    result,
			ToolCallID: decision.ToolCallID,
			ToolName:   decision.ToolName,
		})
	}
}

// probe re-runs validation and filters out failures the unit did not cause
func (l *Loop) probe(ctx context.Context) ([]domain.Diagnostic, error) {
	diags, err := l.opts.Validator.Run(ctx, l.opts.WorkspaceDir, l.opts.Unit)
	if err != nil {
		return nil, err
	}
	if l.opts.Classifier != nil {
		attributable, preexisting := l.opts.Classifier.Filter(diags)
		if len(preexisting) > 0 {
			l.log.Debug("ignoring pre-existing diagnostics", "count", len(preexisting))
		}
		diags = attributable
	}
	if l.before == nil {
		l.before = diags
	}
	return diags, nil
}

// appendDiagnostics adds the user turn for the current probe. The first turn
// carries the full unit briefing including prior failed attempts.
func (l *Loop) appendDiagnostics(diags []domain.Diagnostic) error {
	if l.transcript.Len() == 1 {
		var prior string
		if l.opts.History != nil {
			attempts, err := l.opts.History.Query(l.opts.Unit.Branch, l.opts.Unit.ID)
			if err != nil {
				l.log.Warn("history query failed", "error", err)
			} else {
				prior = history.FormatForPrompt(attempts)
			}
		}
		opening, err := l.opts.Prompts.BuildUnitPrompt(l.opts.Unit, diags, prior)
		if err != nil {
			return err
		}
		l.transcript.Append(oracle.Turn{Role: oracle.RoleUser, Content: opening})
		return nil
	}

	var lines []string
	for _, d := range diags {
		lines = append(lines, "- "+d.String())
	}
	l.transcript.Append(oracle.Turn{
		Role:    oracle.RoleUser,
		Content: "Validation still fails:\n" + strings.Join(lines, "\n"),
	})
	return nil
}

// decide compacts the transcript if the next call would exceed the budget,
// then asks the oracle for its next move
func (l *Loop) decide(ctx context.Context) (*oracle.Decision, error) {
	if l.opts.Tracker.OverBudget(l.transcript) {
		var latest string
		if len(l.last) > 0 {
			latest = l.last[0].String()
		}
		compacted := l.opts.Tracker.Compact(l.transcript, budget.Summary{
			Iterations:    l.iterations,
			ToolCalls:     l.toolCalls,
			WritesApplied: len(l.opts.Tools.TouchedFiles()),
			LatestFailure: latest,
		})
		l.log.Info("transcript compacted",
			"turns_before", l.transcript.Len(), "turns_after", compacted.Len())
		l.transcript = compacted
	}
	return l.opts.Oracle.Decide(ctx, l.transcript)
}

// finish builds and records the run's single attempt
func (l *Loop) finish(outcome Outcome, reason string) *Result {
	attempt := &domain.Attempt{
		ID:                uuid.NewString(),
		Unit:              l.opts.Unit.ID,
		Branch:            l.opts.Unit.Branch,
		Strategy:          l.strategy(outcome, reason),
		DiagnosticsBefore: l.before,
		DiagnosticsAfter:  l.last,
		FilesTouched:      l.opts.Tools.TouchedFiles(),
		Outcome:           attemptOutcome(outcome),
		Iterations:        l.iterations,
		RecordedAt:        time.Now().UTC(),
	}
	if l.opts.History != nil {
		if err := l.opts.History.Record(attempt); err != nil {
			l.log.Warn("recording attempt failed", "error", err)
		}
	}
	return &Result{
		Outcome:     outcome,
		Attempt:     attempt,
		Iterations:  l.iterations,
		Diagnostics: l.last,
		Reason:      reason,
	}
}

func (l *Loop) strategy(outcome Outcome, reason string) string {
	if outcome == Abandoned {
		return "abandoned: " + reason
	}
	if l.lastAssistant != "" {
		return truncateStrategy(l.lastAssistant)
	}
	return fmt.Sprintf("%d tool calls, %d files written",
		l.toolCalls, len(l.opts.Tools.TouchedFiles()))
}

func attemptOutcome(o Outcome) domain.AttemptOutcome {
	switch o {
	case Succeeded:
		return domain.OutcomeSuccess
	case Abandoned:
		return domain.OutcomeAbandoned
	default:
		return domain.OutcomeFailure
	}
}

func truncateStrategy(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
