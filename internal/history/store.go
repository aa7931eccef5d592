// Package history persists fix attempt outcomes across runs so failed
// strategies are not retried blindly.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed attempt history keyed by (branch, unit).
// Each key holds one ordered JSON document of attempts; writers serialize
// around a whole-document read-modify-write so concurrent appends to the
// same key never lose updates.
type Store struct {
	db        *sql.DB
	maxPerKey int
	retention time.Duration

	mu sync.Mutex // serializes read-modify-write cycles
}

// Summary aggregates attempt counts for one branch
type Summary struct {
	TotalAttempts  int
	FailedAttempts int
}

// New creates a Store with the given database path and retention policy
func New(dbPath string, maxPerKey int, retention time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, maxPerKey: maxPerKey, retention: retention}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends an attempt to its (branch, unit) document, then prunes:
// entries older than the retention window are dropped, and the document is
// capped at maxPerKey entries, discarding oldest first.
func (s *Store) Record(attempt *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts, err := s.load(attempt.Branch, attempt.Unit)
	if err != nil {
		return err
	}

	attempts = append(attempts, *attempt)
	attempts = s.prune(attempts, time.Now())

	doc, err := json.Marshal(attempts)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO attempt_history (branch, unit, attempts, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(branch, unit) DO UPDATE SET
			attempts = excluded.attempts,
			updated_at = excluded.updated_at
	`, attempt.Branch, attempt.Unit, string(doc), time.Now())
	return err
}

// Query returns the failed attempts for (branch, unit), most-recent-first,
// limited to the retention window. It never mutates stored state.
func (s *Store) Query(branch, unit string) ([]domain.Attempt, error) {
	attempts, err := s.load(branch, unit)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-s.retention)
	var failed []domain.Attempt
	for i := len(attempts) - 1; i >= 0; i-- {
		a := attempts[i]
		if a.Failed() && a.RecordedAt.After(cutoff) {
			failed = append(failed, a)
		}
	}
	return failed, nil
}

// Summarize counts attempts recorded for a branch
func (s *Store) Summarize(branch string) (Summary, error) {
	rows, err := s.db.Query(`SELECT attempts FROM attempt_history WHERE branch = ?`, branch)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()

	var sum Summary
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return Summary{}, err
		}
		var attempts []domain.Attempt
		if err := json.Unmarshal([]byte(doc), &attempts); err != nil {
			return Summary{}, err
		}
		for _, a := range attempts {
			sum.TotalAttempts++
			if a.Failed() {
				sum.FailedAttempts++
			}
		}
	}
	return sum, rows.Err()
}

// Clear removes all history for a branch
func (s *Store) Clear(branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM attempt_history WHERE branch = ?`, branch)
	return err
}

// FormatForPrompt renders failed attempts as prior-failure warnings for
// transcript injection. Diagnostics are truncated to keep the seed small.
func FormatForPrompt(attempts []domain.Attempt) string {
	if len(attempts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Previous fix attempts for this unit FAILED. Do not repeat these strategies:\n")
	for i, a := range attempts {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, a.RecordedAt.Format("2006-01-02 15:04"), a.Strategy)
		if a.Outcome == domain.OutcomeAbandoned {
			b.WriteString(" (abandoned as unfixable)")
		}
		b.WriteString("\n")
		for j, d := range a.DiagnosticsAfter {
			if j >= 3 {
				fmt.Fprintf(&b, "   ... and %d more diagnostics\n", len(a.DiagnosticsAfter)-j)
				break
			}
			fmt.Fprintf(&b, "   still failing: %s\n", d.String())
		}
	}
	return b.String()
}

// load reads the ordered attempt document for one key, oldest first
func (s *Store) load(branch, unit string) ([]domain.Attempt, error) {
	var doc string
	err := s.db.QueryRow(`SELECT attempts FROM attempt_history WHERE branch = ? AND unit = ?`,
		branch, unit).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var attempts []domain.Attempt
	if err := json.Unmarshal([]byte(doc), &attempts); err != nil {
		return nil, fmt.Errorf("corrupt attempt document for %s/%s: %w", branch, unit, err)
	}
	return attempts, nil
}

// prune enforces the retention window and per-key cap, oldest first out
func (s *Store) prune(attempts []domain.Attempt, now time.Time) []domain.Attempt {
	cutoff := now.Add(-s.retention)
	kept := attempts[:0]
	for _, a := range attempts {
		if a.RecordedAt.After(cutoff) {
			kept = append(kept, a)
		}
	}
	if len(kept) > s.maxPerKey {
		kept = kept[len(kept)-s.maxPerKey:]
	}
	return kept
}
