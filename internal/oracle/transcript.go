package oracle

// Role identifies who produced a transcript turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry in a fix loop's conversation
type Turn struct {
	Role    Role
	Content string

	// ToolCall is set on assistant turns that request a tool
	ToolCall ToolCall
	// ToolCallID correlates a tool result turn with its request
	ToolCallID string
	// ToolName is set alongside ToolCallID on request and result turns
	ToolName string
}

// ApproxChars returns the turn's contribution to transcript size
func (t Turn) ApproxChars() int {
	n := len(t.Content)
	if t.ToolCall != nil {
		n += t.ToolCall.approxChars()
	}
	return n
}

// Transcript is the ordered conversation history for one fix loop run.
// It is exclusively owned by its loop instance and never shared across
// workers, so it needs no locking.
type Transcript struct {
	turns []Turn
}

// NewTranscript creates a transcript from existing turns
func NewTranscript(turns []Turn) *Transcript {
	return &Transcript{turns: turns}
}

// Append adds a turn to the end of the transcript
func (t *Transcript) Append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// Turns returns the underlying turn slice. Callers must not mutate it.
func (t *Transcript) Turns() []Turn {
	return t.turns
}

// Len returns the number of turns
func (t *Transcript) Len() int {
	return len(t.turns)
}
