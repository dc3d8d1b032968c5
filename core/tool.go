package core

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a tool to the agent.
type ToolDefinition struct {
	ToolName        string
	ToolDescription string
	InputSchema     map[string]interface{}
}

// Tool is an agent-facing adapter. Execute returns the text handed back to
// the agent; an error is reserved for failures the agent cannot recover from.
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}
