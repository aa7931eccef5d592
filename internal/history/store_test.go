package history

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/domain"
)

func newTestStore(t *testing.T, maxPerKey int, retention time.Duration) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "history.db"), maxPerKey, retention)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func failedAttempt(branch, unit, strategy string, at time.Time) *domain.Attempt {
	return &domain.Attempt{
		ID:         strategy,
		Unit:       unit,
		Branch:     branch,
		Strategy:   strategy,
		Outcome:    domain.OutcomeFailure,
		RecordedAt: at,
	}
}

func TestStore_RecordAndQuery(t *testing.T) {
	store := newTestStore(t, 20, 7*24*time.Hour)

	now := time.Now()
	store.Record(failedAttempt("main", "src/a.ts", "first", now.Add(-2*time.Hour)))
	store.Record(failedAttempt("main", "src/a.ts", "second", now.Add(-1*time.Hour)))
	store.Record(&domain.Attempt{
		Unit: "src/a.ts", Branch: "main", Strategy: "worked",
		Outcome: domain.OutcomeSuccess, RecordedAt: now,
	})

	attempts, err := store.Query("main", "src/a.ts")
	if err != nil {
		t.Fatal(err)
	}

	// Only failed attempts, most recent first
	if len(attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(attempts))
	}
	if attempts[0].Strategy != "second" || attempts[1].Strategy != "first" {
		t.Errorf("order = %s, %s; want second, first", attempts[0].Strategy, attempts[1].Strategy)
	}
}

func TestStore_QueryUnknownKey(t *testing.T) {
	store := newTestStore(t, 20, 7*24*time.Hour)

	attempts, err := store.Query("main", "src/never-seen.ts")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 0 {
		t.Errorf("got %d attempts, want 0", len(attempts))
	}
}

func TestStore_CapEnforcedOldestFirst(t *testing.T) {
	store := newTestStore(t, 5, 7*24*time.Hour)

	now := time.Now()
	for i := 0; i < 12; i++ {
		store.Record(failedAttempt("main", "src/a.ts", fmt.Sprintf("s%02d", i), now.Add(time.Duration(i)*time.Minute)))
	}

	attempts, err := store.Query("main", "src/a.ts")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 5 {
		t.Fatalf("got %d attempts, want 5 (cap)", len(attempts))
	}
	// Most recent survives; oldest were discarded
	if attempts[0].Strategy != "s11" {
		t.Errorf("newest = %s, want s11", attempts[0].Strategy)
	}
	if attempts[4].Strategy != "s07" {
		t.Errorf("oldest kept = %s, want s07", attempts[4].Strategy)
	}
}

func TestStore_RetentionWindow(t *testing.T) {
	store := newTestStore(t, 20, 7*24*time.Hour)

	now := time.Now()
	store.Record(failedAttempt("main", "src/a.ts", "ancient", now.Add(-8*24*time.Hour)))
	store.Record(failedAttempt("main", "src/a.ts", "recent", now.Add(-time.Hour)))

	attempts, err := store.Query("main", "src/a.ts")
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 {
		t.Fatalf("got %d attempts, want 1", len(attempts))
	}
	if attempts[0].Strategy != "recent" {
		t.Errorf("kept = %s, want recent", attempts[0].Strategy)
	}
}

func TestStore_KeysAreIndependent(t *testing.T) {
	store := newTestStore(t, 20, 7*24*time.Hour)

	now := time.Now()
	store.Record(failedAttempt("main", "src/a.ts", "a", now))
	store.Record(failedAttempt("main", "src/b.ts", "b", now))
	store.Record(failedAttempt("feat/x", "src/a.ts", "c", now))

	attempts, _ := store.Query("main", "src/a.ts")
	if len(attempts) != 1 || attempts[0].Strategy != "a" {
		t.Errorf("main/src/a.ts attempts = %+v", attempts)
	}

	attempts, _ = store.Query("feat/x", "src/a.ts")
	if len(attempts) != 1 || attempts[0].Strategy != "c" {
		t.Errorf("feat/x/src/a.ts attempts = %+v", attempts)
	}
}

func TestStore_Summarize(t *testing.T) {
	store := newTestStore(t, 20, 7*24*time.Hour)

	now := time.Now()
	store.Record(failedAttempt("main", "src/a.ts", "a", now))
	store.Record(failedAttempt("main", "src/b.ts", "b", now))
	store.Record(&domain.Attempt{
		Unit: "src/c.ts", Branch: "main", Outcome: domain.OutcomeSuccess, RecordedAt: now,
	})
	store.Record(failedAttempt("other", "src/a.ts", "x", now))

	sum, err := store.Summarize("main")
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalAttempts != 3 {
		t.Errorf("TotalAttempts = %d, want 3", sum.TotalAttempts)
	}
	if sum.FailedAttempts != 2 {
		t.Errorf("FailedAttempts = %d, want 2", sum.FailedAttempts)
	}
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t, 20, 7*24*time.Hour)

	now := time.Now()
	store.Record(failedAttempt("main", "src/a.ts", "a", now))
	store.Record(failedAttempt("keep", "src/a.ts", "b", now))

	if err := store.Clear("main"); err != nil {
		t.Fatal(err)
	}

	attempts, _ := store.Query("main", "src/a.ts")
	if len(attempts) != 0 {
		t.Error("cleared branch still has attempts")
	}
	attempts, _ = store.Query("keep", "src/a.ts")
	if len(attempts) != 1 {
		t.Error("other branch was affected by Clear")
	}
}

func TestStore_ConcurrentSameKeyWriters(t *testing.T) {
	store := newTestStore(t, 100, 7*24*time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.Record(failedAttempt("main", "src/a.ts", fmt.Sprintf("s%d", n), time.Now()))
		}(i)
	}
	wg.Wait()

	attempts, err := store.Query("main", "src/a.ts")
	if err != nil {
		t.Fatal(err)
	}
	// No lost updates under concurrent append to one key
	if len(attempts) != 10 {
		t.Errorf("got %d attempts, want 10", len(attempts))
	}
}

func TestFormatForPrompt(t *testing.T) {
	now := time.Now()
	attempts := []domain.Attempt{
		{
			Strategy:   "renamed the variable",
			Outcome:    domain.OutcomeFailure,
			RecordedAt: now,
			DiagnosticsAfter: []domain.Diagnostic{
				{File: "src/a.ts", Line: 1, Message: "still broken"},
			},
		},
	}

	out := FormatForPrompt(attempts)
	if !strings.Contains(out, "renamed the variable") {
		t.Errorf("prompt missing strategy: %q", out)
	}
	if !strings.Contains(out, "still broken") {
		t.Errorf("prompt missing diagnostic: %q", out)
	}

	if FormatForPrompt(nil) != "" {
		t.Error("empty history should format to empty string")
	}
}
