// Package attribution classifies diagnostics as caused by the unit under
// repair or pre-existing in the baseline.
package attribution

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// ChangeSet is the set of paths changed relative to a baseline ref
type ChangeSet struct {
	files map[string]struct{}
}

// ComputeChangeSet diffs the working tree against baseRef and collects the
// touched paths. Returns an error if the ref is unreachable or git fails.
func ComputeChangeSet(ctx context.Context, repoDir, baseRef string) (*ChangeSet, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", baseRef)
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff %s: %w", baseRef, err)
	}
	return ParseChangeSet(out)
}

// ParseChangeSet extracts changed paths from unified diff output
func ParseChangeSet(unifiedDiff []byte) (*ChangeSet, error) {
	cs := &ChangeSet{files: make(map[string]struct{})}
	if len(unifiedDiff) == 0 {
		return cs, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff(unifiedDiff)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	for _, fd := range fileDiffs {
		for _, name := range []string{fd.NewName, fd.OrigName} {
			if p := stripDiffPrefix(name); p != "" {
				cs.files[p] = struct{}{}
			}
		}
	}
	return cs, nil
}

// stripDiffPrefix removes the a/ or b/ prefix git puts on diff paths
func stripDiffPrefix(name string) string {
	if name == "" || name == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

// Contains reports whether path is in the changed set
func (c *ChangeSet) Contains(path string) bool {
	_, ok := c.files[path]
	return ok
}

// Empty reports whether no paths changed
func (c *ChangeSet) Empty() bool {
	return len(c.files) == 0
}

// Files returns the changed paths in sorted order
func (c *ChangeSet) Files() []string {
	out := make([]string, 0, len(c.files))
	for f := range c.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
