package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOracle implements Oracle against an OpenAI-compatible chat
// completion endpoint with function calling.
type OpenAIOracle struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// OpenAIOptions configures the oracle client
type OpenAIOptions struct {
	Model     string
	MaxTokens int
	BaseURL   string
	APIKeyEnv string
	Timeout   time.Duration
}

// NewOpenAI creates an oracle backed by an OpenAI-compatible API.
// The API key is read from the configured environment variable; a missing
// key is an environment error, reported before any job starts.
func NewOpenAI(opts OpenAIOptions) (*OpenAIOracle, error) {
	keyEnv := opts.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s not set", keyEnv)
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIOracle{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
	}, nil
}

// Decide sends the transcript and fixed tool schema to the model and maps
// the response to a Decision.
func (o *OpenAIOracle) Decide(ctx context.Context, t *Transcript) (*Decision, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toMessages(t),
		Tools:    toolSchema(),
	}
	if o.maxTokens > 0 {
		req.MaxCompletionTokens = o.maxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("oracle call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("oracle returned no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return &Decision{Message: msg.Content}, nil
	}

	// The loop holds one pending tool call at a time; extra calls in the
	// same response are dropped rather than queued.
	tc := msg.ToolCalls[0]

	if tc.Function.Name == abandonToolName {
		var args struct {
			Reason string `json:"reason"`
		}
		json.Unmarshal([]byte(tc.Function.Arguments), &args)
		return &Decision{Unfixable: true, Message: args.Reason}, nil
	}

	call, err := decodeToolCall(tc.Function.Name, []byte(tc.Function.Arguments))
	if err != nil {
		return nil, err
	}
	return &Decision{
		Tool:       call,
		ToolCallID: tc.ID,
		ToolName:   tc.Function.Name,
	}, nil
}

// toMessages converts a transcript to the wire message format
func toMessages(t *Transcript) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, t.Len())
	for _, turn := range t.Turns() {
		switch turn.Role {
		case RoleSystem:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleSystem, Content: turn.Content,
			})
		case RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleUser, Content: turn.Content,
			})
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant, Content: turn.Content,
			}
			if turn.ToolCall != nil {
				args, _ := json.Marshal(turn.ToolCall)
				msg.ToolCalls = []openai.ToolCall{{
					ID:   turn.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      turn.ToolName,
						Arguments: string(args),
					},
				}}
			}
			msgs = append(msgs, msg)
		case RoleTool:
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    turn.Content,
				ToolCallID: turn.ToolCallID,
				Name:       turn.ToolName,
			})
		}
	}
	return msgs
}

// toolSchema returns the fixed tool schema offered on every oracle call
func toolSchema() []openai.Tool {
	def := func(name, description string, params string) openai.Tool {
		return openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: description,
				Parameters:  json.RawMessage(params),
			},
		}
	}

	return []openai.Tool{
		def("read_file", "Read a file from the workspace, optionally a line range.", `{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"start_line": {"type": "integer"},
				"end_line": {"type": "integer"}
			},
			"required": ["path"]
		}`),
		def("write_file", "Replace a file's content. The file is reformatted automatically.", `{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"content": {"type": "string"}
			},
			"required": ["path", "content"]
		}`),
		def("run_command", "Run a shell command inside the workspace.", `{
			"type": "object",
			"properties": {
				"command": {"type": "string"}
			},
			"required": ["command"]
		}`),
		def("search_files", "Find workspace files matching a glob pattern, e.g. src/**/*.ts.", `{
			"type": "object",
			"properties": {
				"pattern": {"type": "string"}
			},
			"required": ["pattern"]
		}`),
		def("list_files", "List files under a workspace directory.", `{
			"type": "object",
			"properties": {
				"dir": {"type": "string"}
			},
			"required": ["dir"]
		}`),
		def(abandonToolName, "Declare the unit unfixable and stop. Use only when no fix is possible.", `{
			"type": "object",
			"properties": {
				"reason": {"type": "string"}
			},
			"required": ["reason"]
		}`),
	}
}
