package llm

import "context"

// Role identifies the author of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Model generates the next assistant turn for a conversation
type Model interface {
	// Name returns the model identifier
	Name() string

	// Generate produces a response, optionally offering the given tools
	Generate(ctx context.Context, thread Thread, tools []ToolSpec) (*Response, error)
}

// Thread is an ordered conversation plus an optional system prompt
type Thread struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
}

// Message is one entry in a conversation
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// ToolSpec describes a tool the model may call
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Usage tracks token consumption
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the result of one generation
type Response struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// UserThread builds a single-message conversation
func UserThread(text string) Thread {
	return Thread{Messages: []Message{{Role: RoleUser, Content: text}}}
}

// Append adds messages and returns the thread for chaining
func (t *Thread) Append(msgs ...Message) *Thread {
	t.Messages = append(t.Messages, msgs...)
	return t
}
