// Package budget bounds the resource cost of a growing fix loop transcript.
package budget

import (
	"fmt"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/oracle"
)

// Estimator approximates a transcript's token cost. Exact tokenization is
// an external concern; implementations only need to be monotonic in size.
type Estimator interface {
	Estimate(t *oracle.Transcript) int
}

// CharEstimator estimates tokens as characters divided by a constant
type CharEstimator struct {
	CharsPerToken int
}

// Estimate implements Estimator
func (e CharEstimator) Estimate(t *oracle.Transcript) int {
	per := e.CharsPerToken
	if per <= 0 {
		per = 4
	}
	chars := 0
	for _, turn := range t.Turns() {
		chars += turn.ApproxChars()
	}
	return chars / per
}

// Summary carries the loop progress folded into a compaction marker
type Summary struct {
	Iterations    int
	ToolCalls     int
	WritesApplied int
	LatestFailure string
}

// Tracker decides when a transcript must be compacted and performs the
// compaction. Compaction always runs before the oracle call that would
// exceed the cap, never after.
type Tracker struct {
	estimator    Estimator
	maxTokens    int
	retainRecent int
}

// NewTracker creates a Tracker. retainRecent is the number of trailing
// turns preserved verbatim through compaction.
func NewTracker(estimator Estimator, maxTokens, retainRecent int) *Tracker {
	if estimator == nil {
		estimator = CharEstimator{}
	}
	if retainRecent < 1 {
		retainRecent = 1
	}
	return &Tracker{estimator: estimator, maxTokens: maxTokens, retainRecent: retainRecent}
}

// Estimate returns the current estimated token cost
func (tr *Tracker) Estimate(t *oracle.Transcript) int {
	return tr.estimator.Estimate(t)
}

// OverBudget reports whether the transcript exceeds the cap
func (tr *Tracker) OverBudget(t *oracle.Transcript) bool {
	return tr.maxTokens > 0 && tr.estimator.Estimate(t) > tr.maxTokens
}

// Compact rebuilds the transcript retaining the system context, the first
// user turn, and the most recent turns; the elided middle is replaced by a
// synthesized summary of loop progress.
func (tr *Tracker) Compact(t *oracle.Transcript, sum Summary) *oracle.Transcript {
	turns := t.Turns()

	var kept []oracle.Turn
	var body []oracle.Turn
	firstUserSeen := false
	for _, turn := range turns {
		switch {
		case turn.Role == oracle.RoleSystem && !firstUserSeen:
			kept = append(kept, turn)
		case turn.Role == oracle.RoleUser && !firstUserSeen:
			kept = append(kept, turn)
			firstUserSeen = true
		default:
			body = append(body, turn)
		}
	}

	recent := body
	if len(recent) > tr.retainRecent {
		recent = recent[len(recent)-tr.retainRecent:]
	}
	// A tool result without its requesting assistant turn confuses the
	// oracle endpoint; drop orphaned results at the head of the tail.
	for len(recent) > 0 && recent[0].Role == oracle.RoleTool {
		recent = recent[1:]
	}

	elided := len(body) - len(recent)
	if elided > 0 {
		kept = append(kept, oracle.Turn{
			Role:    oracle.RoleUser,
			Content: summaryText(elided, sum),
		})
	}
	kept = append(kept, recent...)

	return oracle.NewTranscript(kept)
}

func summaryText(elided int, sum Summary) string {
	text := fmt.Sprintf(
		"[conversation compacted: %d earlier turns elided. %d iterations so far, %d tool calls, %d file writes applied.",
		elided, sum.Iterations, sum.ToolCalls, sum.WritesApplied)
	if sum.LatestFailure != "" {
		text += " Latest failure: " + sum.LatestFailure
	}
	return text + "]"
}
