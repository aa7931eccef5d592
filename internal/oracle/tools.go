package oracle

import (
	"encoding/json"
	"fmt"
)

// ToolCall is the closed set of operations the oracle may request against a
// workspace. One variant per tool; consumers dispatch with an exhaustive
// type switch, never by name lookup.
type ToolCall interface {
	isToolCall()
	approxChars() int
}

// ReadFile requests file content, optionally limited to a line range
type ReadFile struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

// WriteFile replaces a file's content. Every write is routed through the
// external formatting collaborator before validation.
type WriteFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// RunCommand executes a shell command inside the workspace
type RunCommand struct {
	Command string `json:"command"`
}

// SearchFiles finds workspace files whose paths match a glob pattern
type SearchFiles struct {
	Pattern string `json:"pattern"`
}

// ListFiles lists a directory inside the workspace
type ListFiles struct {
	Dir string `json:"dir"`
}

func (ReadFile) isToolCall()    {}
func (WriteFile) isToolCall()   {}
func (RunCommand) isToolCall()  {}
func (SearchFiles) isToolCall() {}
func (ListFiles) isToolCall()   {}

func (c ReadFile) approxChars() int    { return len(c.Path) + 16 }
func (c WriteFile) approxChars() int   { return len(c.Path) + len(c.Content) }
func (c RunCommand) approxChars() int  { return len(c.Command) }
func (c SearchFiles) approxChars() int { return len(c.Pattern) }
func (c ListFiles) approxChars() int   { return len(c.Dir) }

// Name returns the wire name of a tool call variant
func Name(c ToolCall) string {
	switch c.(type) {
	case ReadFile:
		return "read_file"
	case WriteFile:
		return "write_file"
	case RunCommand:
		return "run_command"
	case SearchFiles:
		return "search_files"
	case ListFiles:
		return "list_files"
	default:
		return "unknown"
	}
}

// abandonToolName is the wire name of the terminal unfixable signal. It is
// not part of the ToolCall union: it ends the loop instead of acting on the
// workspace.
const abandonToolName = "abandon"

// decodeToolCall turns a wire (name, arguments) pair into a union variant
func decodeToolCall(name string, arguments []byte) (ToolCall, error) {
	switch name {
	case "read_file":
		var c ReadFile
		if err := json.Unmarshal(arguments, &c); err != nil {
			return nil, fmt.Errorf("decoding read_file arguments: %w", err)
		}
		return c, nil
	case "write_file":
		var c WriteFile
		if err := json.Unmarshal(arguments, &c); err != nil {
			return nil, fmt.Errorf("decoding write_file arguments: %w", err)
		}
		return c, nil
	case "run_command":
		var c RunCommand
		if err := json.Unmarshal(arguments, &c); err != nil {
			return nil, fmt.Errorf("decoding run_command arguments: %w", err)
		}
		return c, nil
	case "search_files":
		var c SearchFiles
		if err := json.Unmarshal(arguments, &c); err != nil {
			return nil, fmt.Errorf("decoding search_files arguments: %w", err)
		}
		return c, nil
	case "list_files":
		var c ListFiles
		if err := json.Unmarshal(arguments, &c); err != nil {
			return nil, fmt.Errorf("decoding list_files arguments: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("oracle requested unknown tool: %q", name)
	}
}
