// Package diagnose runs validation commands and turns their output into
// structured diagnostics. The fix loop only ever sees the structured form.
package diagnose

import (
	"fmt"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
)

// Parser converts raw validation tool output into diagnostics.
// Implementations must be deterministic on identical input.
type Parser interface {
	// Name returns the parser identifier used in unit definitions
	Name() string
	// Parse extracts diagnostics from the tool's combined output.
	// A non-zero exit with zero diagnostics is a tool error, not a clean pass;
	// callers distinguish the two via the returned slice and exit code.
	Parse(stdout []byte, exitCode int) ([]domain.Diagnostic, error)
}

// ParserFor resolves a parser by name. Empty name defaults to eslint-json.
func ParserFor(name string) (Parser, error) {
	switch name {
	case "", "eslint-json":
		return eslintParser{}, nil
	case "tsc":
		return tscParser{}, nil
	case "golangci-lint":
		return golangciParser{}, nil
	default:
		return nil, fmt.Errorf("unknown diagnostic parser: %q", name)
	}
}
