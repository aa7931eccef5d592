package attribution

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
)

// sourceExtensions limits sibling matching to files a linter would touch
var sourceExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".mjs": true,
	".go": true, ".py": true, ".rs": true, ".java": true, ".kt": true,
}

// Classifier decides whether a diagnostic pre-exists in the baseline.
// A nil changed set (computation failed) classifies nothing as pre-existing:
// attempting a fix beats silently ignoring a real regression.
type Classifier struct {
	changed *ChangeSet
}

// NewClassifier computes the changed set for a workspace against its base
// ref. A failed computation is logged and degrades to "nothing pre-exists".
func NewClassifier(ctx context.Context, repoDir, baseRef string) *Classifier {
	cs, err := ComputeChangeSet(ctx, repoDir, baseRef)
	if err != nil {
		slog.Warn("changed-set computation failed, treating all diagnostics as attributable",
			"base_ref", baseRef, "error", err)
		return &Classifier{}
	}
	return &Classifier{changed: cs}
}

// NewClassifierFromChangeSet wraps a precomputed changed set
func NewClassifierFromChangeSet(cs *ChangeSet) *Classifier {
	return &Classifier{changed: cs}
}

// IsPreexisting reports whether the diagnostic is attributable to baseline
// state rather than the unit under repair. A diagnostic pre-exists only if
// neither its file nor a same-directory sibling source file was changed.
func (c *Classifier) IsPreexisting(d domain.Diagnostic) bool {
	if c.changed == nil {
		return false
	}
	if c.changed.Contains(d.File) {
		return false
	}
	for _, f := range c.changed.Files() {
		if isSourceFile(f) && domain.SameDirectory(f, d.File) {
			return false
		}
	}
	return true
}

// Filter splits diagnostics into attributable and pre-existing sets
func (c *Classifier) Filter(diags []domain.Diagnostic) (attributable, preexisting []domain.Diagnostic) {
	for _, d := range diags {
		if c.IsPreexisting(d) {
			preexisting = append(preexisting, d)
		} else {
			attributable = append(attributable, d)
		}
	}
	return attributable, preexisting
}

func isSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}
