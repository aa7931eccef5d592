package oracle

import "testing"

func TestDecodeToolCall(t *testing.T) {
	tests := []struct {
		name string
		args string
		want ToolCall
	}{
		{"read_file", `{"path": "src/a.ts", "start_line": 1, "end_line": 20}`, ReadFile{Path: "src/a.ts", StartLine: 1, EndLine: 20}},
		{"write_file", `{"path": "src/a.ts", "content": "x"}`, WriteFile{Path: "src/a.ts", Content: "x"}},
		{"run_command", `{"command": "npm test"}`, RunCommand{Command: "npm test"}},
		{"search_files", `{"pattern": "TODO"}`, SearchFiles{Pattern: "TODO"}},
		{"list_files", `{"dir": "src"}`, ListFiles{Dir: "src"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeToolCall(tt.name, []byte(tt.args))
			if err != nil {
				t.Fatalf("decodeToolCall() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("decodeToolCall() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeToolCall_UnknownTool(t *testing.T) {
	if _, err := decodeToolCall("delete_everything", []byte(`{}`)); err == nil {
		t.Error("unknown tool name should fail to decode")
	}
}

func TestDecodeToolCall_BadArguments(t *testing.T) {
	if _, err := decodeToolCall("read_file", []byte(`not json`)); err == nil {
		t.Error("malformed arguments should fail to decode")
	}
}

func TestName_CoversAllVariants(t *testing.T) {
	calls := []ToolCall{
		ReadFile{}, WriteFile{}, RunCommand{}, SearchFiles{}, ListFiles{},
	}
	seen := make(map[string]bool)
	for _, c := range calls {
		n := Name(c)
		if n == "unknown" {
			t.Errorf("%T has no name", c)
		}
		if seen[n] {
			t.Errorf("duplicate tool name %q", n)
		}
		seen[n] = true
	}
}

func TestToolSchema_MatchesUnion(t *testing.T) {
	schema := toolSchema()

	names := make(map[string]bool)
	for _, tool := range schema {
		names[tool.Function.Name] = true
	}

	// Every union variant plus the terminal abandon signal
	for _, want := range []string{"read_file", "write_file", "run_command", "search_files", "list_files", "abandon"} {
		if !names[want] {
			t.Errorf("tool schema missing %q", want)
		}
	}
	if len(schema) != 6 {
		t.Errorf("schema has %d tools, want 6", len(schema))
	}
}

func TestTranscript_ApproxChars(t *testing.T) {
	turn := Turn{Role: RoleAssistant, Content: "abc", ToolCall: RunCommand{Command: "npm test"}}
	if turn.ApproxChars() != 3+len("npm test") {
		t.Errorf("ApproxChars() = %d", turn.ApproxChars())
	}
}

func TestToMessages_RoundTripsToolTurns(t *testing.T) {
	tr := NewTranscript([]Turn{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "fix it"},
		{Role: RoleAssistant, ToolCall: ReadFile{Path: "a.ts"}, ToolCallID: "call_1", ToolName: "read_file"},
		{Role: RoleTool, Content: "file content", ToolCallID: "call_1", ToolName: "read_file"},
	})

	msgs := toMessages(tr)
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	if len(msgs[2].ToolCalls) != 1 || msgs[2].ToolCalls[0].Function.Name != "read_file" {
		t.Errorf("assistant tool call not serialized: %+v", msgs[2])
	}
	if msgs[3].ToolCallID != "call_1" {
		t.Errorf("tool result missing correlation id: %+v", msgs[3])
	}
}
