package fixloop

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hochfrequenz/claude-fix-orchestrator/internal/oracle"
)

const maxToolOutput = 8000

// ToolExecutor applies oracle tool calls to one workspace. Failures are
// reported in-band as result text: a missing file is information for the
// oracle, not a loop error.
type ToolExecutor struct {
	root      string
	formatCmd []string
	timeout   time.Duration
	touched   map[string]struct{}
}

// NewToolExecutor creates an executor rooted at the workspace path
func NewToolExecutor(root string, formatCmd []string, timeout time.Duration) *ToolExecutor {
	return &ToolExecutor{
		root:      root,
		formatCmd: formatCmd,
		timeout:   timeout,
		touched:   make(map[string]struct{}),
	}
}

// Execute runs one tool call and returns its result text. The context is
// deliberately not the loop's cancellation context: an in-flight tool call
// finishes before cancellation is honored, so the filesystem is never left
// with an unrecorded partial mutation.
func (e *ToolExecutor) Execute(call oracle.ToolCall) string {
	switch c := call.(type) {
	case oracle.ReadFile:
		return e.readFile(c)
	case oracle.WriteFile:
		return e.writeFile(c)
	case oracle.RunCommand:
		return e.runCommand(c)
	case oracle.SearchFiles:
		return e.searchFiles(c)
	case oracle.ListFiles:
		return e.listFiles(c)
	default:
		return fmt.Sprintf("error: unsupported tool call %T", call)
	}
}

// TouchedFiles returns the workspace-relative paths written so far, sorted
func (e *ToolExecutor) TouchedFiles() []string {
	out := make([]string, 0, len(e.touched))
	for f := range e.touched {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (e *ToolExecutor) readFile(c oracle.ReadFile) string {
	path, err := e.resolve(c.Path)
	if err != nil {
		return "error: " + err.Error()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "error: " + err.Error()
	}

	content := string(data)
	if c.StartLine > 0 || c.EndLine > 0 {
		lines := strings.Split(content, "\n")
		start := c.StartLine
		if start < 1 {
			start = 1
		}
		end := c.EndLine
		if end <= 0 || end > len(lines) {
			end = len(lines)
		}
		if start > len(lines) {
			return fmt.Sprintf("error: start_line %d past end of file (%d lines)", c.StartLine, len(lines))
		}
		content = strings.Join(lines[start-1:end], "\n")
	}
	return truncateOutput(content)
}

func (e *ToolExecutor) writeFile(c oracle.WriteFile) string {
	path, err := e.resolve(c.Path)
	if err != nil {
		return "error: " + err.Error()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "error: " + err.Error()
	}
	if err := os.WriteFile(path, []byte(c.Content), 0644); err != nil {
		return "error: " + err.Error()
	}
	e.touched[filepath.ToSlash(c.Path)] = struct{}{}

	// Every write passes through the external formatting collaborator
	if note := e.format(c.Path); note != "" {
		return fmt.Sprintf("wrote %s (%d bytes); %s", c.Path, len(c.Content), note)
	}
	return fmt.Sprintf("wrote %s (%d bytes)", c.Path, len(c.Content))
}

func (e *ToolExecutor) format(relPath string) string {
	if len(e.formatCmd) == 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	args := append(append([]string{}, e.formatCmd[1:]...), relPath)
	cmd := exec.CommandContext(ctx, e.formatCmd[0], args...)
	cmd.Dir = e.root
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Sprintf("formatter failed: %s", truncateOutput(strings.TrimSpace(string(out))))
	}
	return ""
}

func (e *ToolExecutor) runCommand(c oracle.RunCommand) string {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", c.Command)
	cmd.Dir = e.root
	out, err := cmd.CombinedOutput()

	result := truncateOutput(string(out))
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("error: command timed out after %s\n%s", e.timeout, result)
	}
	if err != nil {
		return fmt.Sprintf("command failed: %v\n%s", err, result)
	}
	if result == "" {
		return "(no output)"
	}
	return result
}

func (e *ToolExecutor) searchFiles(c oracle.SearchFiles) string {
	matches, err := doublestar.Glob(os.DirFS(e.root), c.Pattern)
	if err != nil {
		return "error: invalid pattern: " + err.Error()
	}
	if len(matches) == 0 {
		return "(no matches)"
	}
	sort.Strings(matches)
	return truncateOutput(strings.Join(matches, "\n"))
}

func (e *ToolExecutor) listFiles(c oracle.ListFiles) string {
	dir := c.Dir
	if dir == "" {
		dir = "."
	}
	path, err := e.resolve(dir)
	if err != nil {
		return "error: " + err.Error()
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "error: " + err.Error()
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return truncateOutput(strings.Join(names, "\n"))
}

// resolve maps a workspace-relative path to an absolute one, rejecting
// escapes from the workspace root
func (e *ToolExecutor) resolve(rel string) (string, error) {
	joined := filepath.Join(e.root, filepath.FromSlash(rel))
	cleanRoot := filepath.Clean(e.root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %q", rel)
	}
	return joined, nil
}

func truncateOutput(s string) string {
	if len(s) <= maxToolOutput {
		return s
	}
	return s[:maxToolOutput] + "\n... (output truncated)"
}
