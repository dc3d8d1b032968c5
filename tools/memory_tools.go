// Package tools exposes memory search to the agent as tools. Tools only
// read: they search through a Searcher and never touch indexes directly.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MichaelIeong/SAGE/core"
	"github.com/MichaelIeong/SAGE/logging"
	"github.com/MichaelIeong/SAGE/memory"
)

// Tool names.
const (
	DeviceInfoToolName      = "device_info_tool"
	EnvironmentInfoToolName = "environment_info_tool"
	UserPreferenceToolName  = "user_preference_tool"
)

// Searcher is the read side of memory. *memory.Shared implements it.
type Searcher interface {
	Search(ctx context.Context, query, key string, topK int) ([]string, error)
}

var _ Searcher = (*memory.Shared)(nil)

// DeviceInfoInput is the input of device_info_tool.
type DeviceInfoInput struct {
	core.BaseInput
	// Location optionally restricts results to one space.
	Location string `json:"location,omitempty"`
}

// UserInput is the input of the per-user tools.
type UserInput struct {
	core.BaseInput
	UserName string `json:"user_name"`
}

// DeviceInfoTool finds devices and their functions.
type DeviceInfoTool struct {
	searcher  Searcher
	namespace string
	topK      int
}

// NewDeviceInfoTool searches namespace (default chroma_deviceinfo).
func NewDeviceInfoTool(s Searcher, namespace string, topK int) *DeviceInfoTool {
	if namespace == "" {
		namespace = memory.NamespaceDeviceInfo
	}
	return &DeviceInfoTool{searcher: s, namespace: namespace, topK: topK}
}

func (t *DeviceInfoTool) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		ToolName: DeviceInfoToolName,
		ToolDescription: "Retrieve devices in the home, their IDs, locations and supported functions. " +
			"Optionally restrict to one location (space).",
		InputSchema: BuildSchemaWithThought(map[string]any{
			"query":    StringProperty("What to look for, e.g. 'Which TV is available?'"),
			"location": StringProperty("Optional space ID or name to filter by"),
		}, "query"),
	}
}

func (t *DeviceInfoTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var in DeviceInfoInput
	if err := json.Unmarshal(input, &in); err != nil || in.Query == "" {
		return "Invalid input. Expected JSON with a 'query' key and an optional 'location' key.", nil
	}
	logThought(ctx, DeviceInfoToolName, in.Thought)

	results, err := t.searcher.Search(ctx, in.Query, t.namespace, t.topK)
	if err != nil {
		return unavailable(ctx, DeviceInfoToolName, "devices", err), nil
	}

	if in.Location != "" {
		results = inSpace(results, in.Location)
		if len(results) == 0 {
			return fmt.Sprintf("No matching devices found for location: %s", in.Location), nil
		}
	}
	if len(results) == 0 {
		return "No matching devices found.", nil
	}
	return strings.Join(results, "\n"), nil
}

// inSpace keeps sentences that mention "space <location>".
func inSpace(results []string, location string) []string {
	needle := "space " + strings.ToLower(location)
	var out []string
	for _, r := range results {
		lower := strings.ToLower(r)
		i := strings.Index(lower, needle)
		if i < 0 {
			continue
		}
		// whole token only: "space 1" must not match "space 12"
		rest := lower[i+len(needle):]
		if rest == "" || !isIDChar(rest[0]) {
			out = append(out, r)
		}
	}
	return out
}

func isIDChar(c byte) bool {
	return c == '_' || c == '-' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z')
}

// EnvironmentInfoTool finds where people currently are.
type EnvironmentInfoTool struct {
	searcher  Searcher
	namespace string
	topK      int
}

// NewEnvironmentInfoTool searches namespace (default chroma_environment).
func NewEnvironmentInfoTool(s Searcher, namespace string, topK int) *EnvironmentInfoTool {
	if namespace == "" {
		namespace = memory.NamespaceEnvironment
	}
	return &EnvironmentInfoTool{searcher: s, namespace: namespace, topK: topK}
}

func (t *EnvironmentInfoTool) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		ToolName:        EnvironmentInfoToolName,
		ToolDescription: "Retrieve the environmental context of a user: where people are located in the home right now.",
		InputSchema: BuildSchemaWithThought(map[string]any{
			"query":     StringProperty("What to look for, e.g. 'Where is mmhu?'"),
			"user_name": StringProperty("The user the question is about"),
		}, "query", "user_name"),
	}
}

func (t *EnvironmentInfoTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var in UserInput
	if err := json.Unmarshal(input, &in); err != nil || in.Query == "" || in.UserName == "" {
		return "Invalid input. Expected JSON with keys 'user_name' and 'query'.", nil
	}
	logThought(ctx, EnvironmentInfoToolName, in.Thought)

	results, err := t.searcher.Search(ctx, in.Query, t.namespace, t.topK)
	if err != nil {
		return unavailable(ctx, EnvironmentInfoToolName, "the environment", err), nil
	}
	if len(results) == 0 {
		return fmt.Sprintf("No environmental information found for user '%s'.", in.UserName), nil
	}
	return strings.Join(results, "\n"), nil
}

// UserPreferenceTool searches one user's past requests.
type UserPreferenceTool struct {
	searcher Searcher
	topK     int
}

// NewUserPreferenceTool creates the tool.
func NewUserPreferenceTool(s Searcher, topK int) *UserPreferenceTool {
	return &UserPreferenceTool{searcher: s, topK: topK}
}

func (t *UserPreferenceTool) Definition() core.ToolDefinition {
	return core.ToolDefinition{
		ToolName:        UserPreferenceToolName,
		ToolDescription: "Retrieve a user's past requests relevant to a question, to infer their preferences.",
		InputSchema: BuildSchemaWithThought(map[string]any{
			"query":     StringProperty("What to look for, e.g. 'favorite TV channel'"),
			"user_name": StringProperty("The user whose preferences to search"),
		}, "query", "user_name"),
	}
}

func (t *UserPreferenceTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var in UserInput
	if err := json.Unmarshal(input, &in); err != nil || in.Query == "" || in.UserName == "" {
		return "Invalid input. Expected JSON with keys 'user_name' and 'query'.", nil
	}
	logThought(ctx, UserPreferenceToolName, in.Thought)

	results, err := t.searcher.Search(ctx, in.Query, in.UserName, t.topK)
	if err != nil {
		return unavailable(ctx, UserPreferenceToolName, "user '"+in.UserName+"'", err), nil
	}
	if len(results) == 0 {
		return fmt.Sprintf("No past requests found for user '%s'.", in.UserName), nil
	}
	return strings.Join(results, "\n"), nil
}

// MemoryTools returns the three memory tools over s with default
// namespaces.
func MemoryTools(s Searcher, topK int) []core.Tool {
	return []core.Tool{
		NewDeviceInfoTool(s, "", topK),
		NewEnvironmentInfoTool(s, "", topK),
		NewUserPreferenceTool(s, topK),
	}
}

// Find returns the tool named name.
func Find(tools []core.Tool, name string) (core.Tool, bool) {
	for _, t := range tools {
		if t.Definition().ToolName == name {
			return t, true
		}
	}
	return nil, false
}

func unavailable(ctx context.Context, tool, subject string, err error) string {
	logging.From(ctx).Warn("memory search failed", "tool", tool, "error", err)
	return fmt.Sprintf("No information available about %s.", subject)
}

func logThought(ctx context.Context, tool, thought string) {
	if thought != "" {
		logging.From(ctx).Debug("tool called", "tool", tool, "thought", thought)
	}
}
