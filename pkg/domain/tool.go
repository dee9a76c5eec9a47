package domain

import "context"

// ToolHandler executes one tool invocation. The returned text becomes the
// call's content; a non-nil error marks the result as a domain failure,
// never a protocol fault.
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

// Tool is a named, schema-described capability exposed for discovery.
// InputSchema is served verbatim to peers; arguments are checked for
// presence only, by the handler.
type Tool struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty" mapstructure:"inputSchema"`

	Handler ToolHandler `json:"-" yaml:"-" mapstructure:"-"`
}

// ToolResult is the canonical tools/call result shape.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"isError"`
}

// ToolCall is an invocation descriptor embedded in downstream replies,
// replayed by the bridge as a regular tools/call.
type ToolCall struct {
	Name      string         `json:"name" mapstructure:"name"`
	Arguments map[string]any `json:"arguments,omitempty" mapstructure:"arguments"`
}
