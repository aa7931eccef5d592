// Package oracle defines the reasoning oracle boundary: given a transcript
// and the fixed tool schema, the oracle returns either a tool invocation or
// a terminal answer. The oracle model itself is an external collaborator.
package oracle

import "context"

// Decision is one oracle response. Exactly one of the following holds:
// Tool is non-nil (invoke it), Unfixable is true (abandon the unit), or
// neither (Message is the terminal answer).
type Decision struct {
	Tool       ToolCall
	ToolCallID string
	ToolName   string

	Message   string
	Unfixable bool
}

// Oracle proposes the next action for a fix loop. A loop holds at most one
// outstanding Decide call; implementations must be safe for use from
// multiple loops concurrently.
type Oracle interface {
	Decide(ctx context.Context, t *Transcript) (*Decision, error)
}
