// Package model provides the streaming tool-calling model session contract.
package model

import (
	"context"
	"encoding/json"
)

// ChatMessage is one entry of the ordered chat history sent to the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDef describes one callable tool offered to the model.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Request is a streaming model session request.
type Request struct {
	SystemPrompt string        `json:"system_prompt,omitempty"`
	Messages     []ChatMessage `json:"messages"`
	Tools        []ToolDef     `json:"tools,omitempty"`
	// RequireTool tells the model it must call at least one tool
	// before finishing.
	RequireTool bool `json:"require_tool,omitempty"`
	// CanvasEmpty hints that the session has no committed scene yet.
	CanvasEmpty bool `json:"canvas_empty,omitempty"`
}

// EventType identifies a stream event variant.
type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventReasoningDelta EventType = "reasoning_delta"
	EventToolCall       EventType = "tool_call"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// ToolCall is a tool invocation the model asked for, tracked by a
// unique id for replay and dedup.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// Event is one stream event. Exactly the fields for its Type are set.
type Event struct {
	Type EventType `json:"type"`

	// TextDelta / ReasoningDelta
	Delta string `json:"delta,omitempty"`

	// ToolCall
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Done
	FinalText      string `json:"final_text,omitempty"`
	FinalReasoning string `json:"final_reasoning,omitempty"`

	// Error
	ErrorMessage string `json:"error_message,omitempty"`
}

// NormalizeToolInput builds the canonical tool input payload carrying
// the request text.
func NormalizeToolInput(request string) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"request": request})
}

// Client drives a single streaming model session. The returned channel
// is closed when the stream ends; cancelling the context stops the
// stream at the next chunk boundary.
type Client interface {
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}
