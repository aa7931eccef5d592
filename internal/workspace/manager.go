// Package workspace provides isolated, disposable checkouts for repair jobs.
package workspace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrEnvironment marks workspace failures that are fatal to a single job:
// disk, lock contention, unreachable refs. Never retried automatically.
var ErrEnvironment = errors.New("workspace environment error")

// Workspace is an isolated checkout bound 1:1 to a running job
type Workspace struct {
	Path    string
	Branch  string
	BaseRef string

	released bool
}

// Manager creates and destroys git-worktree-backed workspaces.
// Sibling workspaces share the read-only dependency cache by symlink,
// so N concurrent jobs do not pay N full dependency installs.
type Manager struct {
	repoDir      string
	workspaceDir string
	depCacheDir  string
}

// NewManager creates a Manager rooted at the given repository
func NewManager(repoDir, workspaceDir, depCacheDir string) *Manager {
	return &Manager{
		repoDir:      repoDir,
		workspaceDir: workspaceDir,
		depCacheDir:  depCacheDir,
	}
}

// Acquire creates an isolated worktree at baseRef for the given unit.
// A partial failure is cleaned up before returning; the caller never
// receives a half-built workspace, and never a shared one.
func (m *Manager) Acquire(ctx context.Context, unitID, baseRef string) (*Workspace, error) {
	if err := os.MkdirAll(m.workspaceDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating workspace dir: %v", ErrEnvironment, err)
	}

	if baseRef == "" {
		baseRef = "HEAD"
	}

	branch := branchName(unitID, baseRef)
	m.cleanupExistingBranch(branch)

	wtPath := filepath.Join(m.workspaceDir, fmt.Sprintf("%s-%s", sanitize(unitID), randomSuffix()))

	cmd := exec.CommandContext(ctx, "git", "worktree", "add", "-b", branch, wtPath, baseRef)
	cmd.Dir = m.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: git worktree add: %s: %v", ErrEnvironment, strings.TrimSpace(string(out)), err)
	}

	ws := &Workspace{Path: wtPath, Branch: branch, BaseRef: baseRef}

	if err := m.linkDepCache(ws); err != nil {
		m.Release(ws)
		return nil, fmt.Errorf("%w: linking dependency cache: %v", ErrEnvironment, err)
	}

	return ws, nil
}

// linkDepCache symlinks shared dependency artifacts into the workspace.
// The cache is read-only during repair; any mutating install is the
// caller's responsibility and runs once before workers start.
func (m *Manager) linkDepCache(ws *Workspace) error {
	if m.depCacheDir == "" {
		return nil
	}
	if _, err := os.Stat(m.depCacheDir); err != nil {
		return err
	}
	target := filepath.Join(ws.Path, filepath.Base(m.depCacheDir))
	if _, err := os.Lstat(target); err == nil {
		// worktree already carries a checked-in copy; leave it alone
		return nil
	}
	return os.Symlink(m.depCacheDir, target)
}

// Release deletes the workspace. Idempotent: releasing twice, or releasing
// a workspace whose acquire partially failed, is safe.
func (m *Manager) Release(ws *Workspace) error {
	if ws == nil || ws.released {
		return nil
	}
	ws.released = true

	cmd := exec.Command("git", "worktree", "remove", "--force", ws.Path)
	cmd.Dir = m.repoDir
	if out, err := cmd.CombinedOutput(); err != nil {
		// The worktree may already be gone; fall back to removing the dir
		// and pruning stale metadata.
		os.RemoveAll(ws.Path)
		prune := exec.Command("git", "worktree", "prune")
		prune.Dir = m.repoDir
		prune.Run()
		if _, statErr := os.Stat(ws.Path); statErr == nil {
			return fmt.Errorf("git worktree remove: %s: %w", strings.TrimSpace(string(out)), err)
		}
	}

	if ws.Branch != "" {
		del := exec.Command("git", "branch", "-D", ws.Branch)
		del.Dir = m.repoDir
		del.Run() // branch may not exist
	}
	return nil
}

// List returns the paths of all workspaces this manager owns
func (m *Manager) List() ([]string, error) {
	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = m.repoDir
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "worktree ") {
			path := strings.TrimPrefix(line, "worktree ")
			if strings.HasPrefix(path, m.workspaceDir) {
				paths = append(paths, path)
			}
		}
	}
	return paths, nil
}

// cleanupExistingBranch removes leftovers from a previous run of this unit
// on the same base ref. The branch name carries the base ref, so a sibling
// job repairing the same unit on another branch is never touched.
func (m *Manager) cleanupExistingBranch(branch string) {
	prune := exec.Command("git", "worktree", "prune")
	prune.Dir = m.repoDir
	prune.Run()

	list := exec.Command("git", "worktree", "list", "--porcelain")
	list.Dir = m.repoDir
	out, _ := list.Output()

	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "worktree ") {
			continue
		}
		wtPath := strings.TrimPrefix(line, "worktree ")
		for j := i + 1; j < len(lines) && j < i+4; j++ {
			if strings.TrimSpace(lines[j]) == "branch refs/heads/"+branch {
				rm := exec.Command("git", "worktree", "remove", "--force", wtPath)
				rm.Dir = m.repoDir
				rm.Run()
			}
		}
	}

	del := exec.Command("git", "branch", "-D", branch)
	del.Dir = m.repoDir
	del.Run()
}

// branchName returns the repair branch for a unit at a base ref. The ref is
// part of the name because the same unit may be repaired concurrently on
// several branches, each in its own worktree.
func branchName(unitID, baseRef string) string {
	return "fix/" + sanitize(unitID) + "/" + sanitize(baseRef)
}

// sanitize maps a unit identifier to something usable in branch and
// directory names
func sanitize(unitID string) string {
	var b strings.Builder
	for _, r := range unitID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func randomSuffix() string {
	b := make([]byte, 3)
	rand.Read(b)
	return hex.EncodeToString(b)
}
