package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var unitIDRegex = regexp.MustCompile(`^[^\s:]+$`)

// Diagnostic is one structured finding reported by a validation tool
type Diagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

// String returns the canonical one-line form used in prompts and reports
func (d Diagnostic) String() string {
	if d.Rule != "" {
		return fmt.Sprintf("%s:%d: %s (%s)", d.File, d.Line, d.Message, d.Rule)
	}
	return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Message)
}

// UnitOfWork is one isolated target of a repair run: a file, branch, or
// change-set, together with the command that validates it.
// Immutable after creation.
type UnitOfWork struct {
	ID       string       // path or branch identifying the unit
	Branch   string       // branch the unit belongs to (history key)
	BaseRef  string       // baseline ref for isolation and attribution
	Command  []string     // validation command, argv form
	Parser   string       // diagnostic parser name, e.g. "eslint-json"
	Baseline []Diagnostic // diagnostics present before any repair
}

// Validate checks that the unit is well-formed enough to schedule
func (u *UnitOfWork) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("unit has no identifier")
	}
	if !unitIDRegex.MatchString(u.ID) {
		return fmt.Errorf("invalid unit identifier: %q", u.ID)
	}
	if len(u.Command) == 0 {
		return fmt.Errorf("unit %s has no validation command", u.ID)
	}
	return nil
}

// Key returns the (branch, unit) history key
func (u *UnitOfWork) Key() string {
	return u.Branch + "\x00" + u.ID
}

// SameDirectory reports whether two paths share a parent directory
func SameDirectory(a, b string) bool {
	return parentDir(a) == parentDir(b)
}

func parentDir(p string) string {
	p = strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "."
	}
	return p[:idx]
}
