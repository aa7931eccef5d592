package diagnose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
)

// ErrTimeout marks a validation run that exceeded its deadline.
// The fix loop treats it as a validating-phase failure, not a fatal error.
var ErrTimeout = errors.New("validation command timed out")

// Runner executes a unit's validation command inside a workspace
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a Runner with the given per-invocation timeout
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{timeout: timeout}
}

// Run executes the unit's validation command in dir and returns the parsed
// diagnostics. An empty slice with a nil error means a clean pass.
func (r *Runner) Run(ctx context.Context, dir string, unit *domain.UnitOfWork) ([]domain.Diagnostic, error) {
	parser, err := ParserFor(unit.Parser)
	if err != nil {
		return nil, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, unit.Command[0], unit.Command[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w: %s", ErrTimeout, unit.Command[0])
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// Non-zero exit is expected when diagnostics exist
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("running %s: %w", unit.Command[0], runErr)
		}
	}

	diags, err := parser.Parse(stdout.Bytes(), exitCode)
	if err != nil {
		// Surface stderr to help diagnose tool misconfiguration
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return nil, fmt.Errorf("%w (stderr: %s)", err, truncate(string(msg), 500))
		}
		return nil, err
	}
	return diags, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
