// Package notify reports finished repair runs to humans.
package notify

import (
	"fmt"

	"github.com/hochfrequenz/claude-fix-orchestrator/internal/scheduler"
)

// Severity classifies a notification
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

// Notification is one message about a run or a unit
type Notification struct {
	Title    string
	Message  string
	Severity Severity
	Unit     string // optional unit reference
}

// Notifier is the interface for delivering notifications
type Notifier interface {
	Send(n Notification) error
}

// Multi fans a notification out to several notifiers. Delivery failures do
// not stop the remaining notifiers; the last error is returned.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a notifier that sends to all provided notifiers
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *Multi) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Noop discards notifications (disabled configuration)
type Noop struct{}

func (Noop) Send(Notification) error { return nil }

// ForReport summarizes a finished run as one notification
func ForReport(report *scheduler.Report) Notification {
	severity := SeveritySuccess
	if report.Failed > 0 {
		severity = SeverityError
	} else if report.Skipped > 0 {
		severity = SeverityWarning
	}

	return Notification{
		Title: "Fix run finished",
		Message: fmt.Sprintf("%d units: %d fixed, %d failed, %d skipped",
			len(report.Jobs), report.Succeeded, report.Failed, report.Skipped),
		Severity: severity,
	}
}
