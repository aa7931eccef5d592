package domain

import "time"

// AttemptOutcome classifies how a fix loop run ended
type AttemptOutcome string

const (
	OutcomeSuccess   AttemptOutcome = "success"
	OutcomeFailure   AttemptOutcome = "failure"
	OutcomeAbandoned AttemptOutcome = "abandoned"
)

// Attempt is the immutable record of one fix loop run for a unit.
// Exactly one Attempt is produced per run, whatever its terminal state.
type Attempt struct {
	ID                string         `json:"id"`
	Unit              string         `json:"unit"`
	Branch            string         `json:"branch"`
	Strategy          string         `json:"strategy"`
	DiagnosticsBefore []Diagnostic   `json:"diagnostics_before"`
	DiagnosticsAfter  []Diagnostic   `json:"diagnostics_after"`
	FilesTouched      []string       `json:"files_touched"`
	Outcome           AttemptOutcome `json:"outcome"`
	Iterations        int            `json:"iterations"`
	RecordedAt        time.Time      `json:"recorded_at"`
}

// Failed reports whether this attempt did not fix the unit
func (a *Attempt) Failed() bool {
	return a.Outcome != OutcomeSuccess
}
