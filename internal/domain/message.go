package domain

import (
	"encoding/json"
	"time"
)

// Message is an entry in the durable conversational log. Chat rows are
// created at enqueue time and patched as the driver streams; tool rows
// are created and patched by tool execution, at most one per
// (run_id, tool_call_id).
type Message struct {
	MessageID        string          `json:"message_id"`
	SessionID        string          `json:"session_id"`
	ThreadID         string          `json:"thread_id"`
	RunID            string          `json:"run_id,omitempty"`
	PromptMessageID  string          `json:"prompt_message_id,omitempty"`
	Role             MessageRole     `json:"role"`
	MessageType      MessageType     `json:"message_type"`
	Status           MessageStatus   `json:"status,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningSummary string          `json:"reasoning_summary,omitempty"`
	ToolName         string          `json:"tool_name,omitempty"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`
	ToolInput        json.RawMessage `json:"tool_input,omitempty"`
	ToolOutput       json.RawMessage `json:"tool_output,omitempty"`
	Error            string          `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// MessagePatch is a partial update applied field-by-field; nil fields
// are left untouched.
type MessagePatch struct {
	Status           *MessageStatus
	Content          *string
	ReasoningSummary *string
	ToolOutput       json.RawMessage
	Error            *string
}

// IsEmpty reports whether the patch would change nothing.
func (p MessagePatch) IsEmpty() bool {
	return p.Status == nil && p.Content == nil && p.ReasoningSummary == nil &&
		p.ToolOutput == nil && p.Error == nil
}
