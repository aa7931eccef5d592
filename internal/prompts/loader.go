package prompts

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
)

// Loader manages prompt templates with override support.
type Loader struct {
	overrideDirs []string // Directories to check for overrides (in priority order)
	cache        map[string]*template.Template
	mu           sync.RWMutex
}

// NewLoader creates a loader with the given override directories.
// Directories are checked in order; first match wins.
func NewLoader(overrideDirs ...string) *Loader {
	return &Loader{
		overrideDirs: overrideDirs,
		cache:        make(map[string]*template.Template),
	}
}

// DefaultLoader creates a loader with standard override paths:
// 1. Project-local: .claude-fix/prompts/
// 2. User config: ~/.config/claude-fix/prompts/
func DefaultLoader(projectRoot string) *Loader {
	home, _ := os.UserHomeDir()
	dirs := []string{}

	if projectRoot != "" {
		dirs = append(dirs, filepath.Join(projectRoot, ".claude-fix", "prompts"))
	}
	dirs = append(dirs, filepath.Join(home, ".config", "claude-fix", "prompts"))

	return NewLoader(dirs...)
}

// loadContent loads raw content from override dirs or embedded FS.
func (l *Loader) loadContent(path string) ([]byte, error) {
	// Check override directories first
	for _, dir := range l.overrideDirs {
		fullPath := filepath.Join(dir, path)
		if data, err := os.ReadFile(fullPath); err == nil {
			return data, nil
		}
	}

	// Fall back to embedded
	return fs.ReadFile(embeddedFS, path)
}

// LoadTemplate loads and parses a template by path (e.g., "fix/unit.md").
func (l *Loader) LoadTemplate(path string) (*template.Template, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return tmpl, nil
	}
	l.mu.RUnlock()

	content, err := l.loadContent(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	tmpl, err := template.New(path).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("compile template %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.mu.Unlock()

	return tmpl, nil
}

// Execute loads and executes a template with the given data.
func (l *Loader) Execute(path string, data interface{}) (string, error) {
	tmpl, err := l.LoadTemplate(path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", path, err)
	}

	return buf.String(), nil
}

// UnitData holds template variables for the opening fix prompt.
type UnitData struct {
	UnitID      string
	Branch      string
	Command     string
	Diagnostics string
	History     string
}

// BuildSystemPrompt loads the fix loop system prompt.
func (l *Loader) BuildSystemPrompt() (string, error) {
	return l.Execute("fix/system.md", struct{}{})
}

// BuildUnitPrompt renders the opening user turn for one unit of work.
func (l *Loader) BuildUnitPrompt(unit *domain.UnitOfWork, diags []domain.Diagnostic, history string) (string, error) {
	var lines []string
	for _, d := range diags {
		lines = append(lines, "- "+d.String())
	}

	return l.Execute("fix/unit.md", UnitData{
		UnitID:      unit.ID,
		Branch:      unit.Branch,
		Command:     strings.Join(unit.Command, " "),
		Diagnostics: strings.Join(lines, "\n"),
		History:     history,
	})
}

// ClearCache clears the template cache (useful for development/testing).
func (l *Loader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*template.Template)
	l.mu.Unlock()
}
