package model

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// MockClient is a deterministic in-process model for local runs and
// tests. It always calls exactly one tool, picked from the request.
type MockClient struct {
	// ChunkDelay slows the stream down to make partial progress
	// observable. Zero means no delay.
	ChunkDelay time.Duration
}

// NewMockClient creates a new mock model client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements Client.
var _ Client = (*MockClient)(nil)

var mockTweakRe = regexp.MustCompile(`(?i)\b(rename|label|text|color|colour|style|font|spacing|align|minor)\b|small tweak`)

// Stream emits reasoning, a tool call, assistant text, and a final done
// event. It stops at the next chunk boundary when ctx is cancelled.
func (m *MockClient) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	userText := lastUserMessage(req.Messages)
	tool := m.pickTool(req, userText)

	ch := make(chan Event)
	go func() {
		defer close(ch)

		send := func(ev Event) bool {
			if m.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					return false
				case <-time.After(m.ChunkDelay):
				}
			}
			select {
			case <-ctx.Done():
				return false
			case ch <- ev:
				return true
			}
		}

		reasoning := fmt.Sprintf("The user wants: %s. Using %s.", truncate(userText, 80), tool)
		for _, part := range splitChunks(reasoning, 24) {
			if !send(Event{Type: EventReasoningDelta, Delta: part}) {
				return
			}
		}

		input, _ := NormalizeToolInput(userText)
		if !send(Event{Type: EventToolCall, ToolCall: &ToolCall{
			ID:    "call_" + uuid.New().String()[:8],
			Name:  tool,
			Input: input,
		}}) {
			return
		}

		text := fmt.Sprintf("I updated the diagram based on your request: %s.", truncate(userText, 120))
		for _, part := range splitChunks(text, 16) {
			if !send(Event{Type: EventTextDelta, Delta: part}) {
				return
			}
		}

		send(Event{Type: EventDone, FinalText: text, FinalReasoning: reasoning})
	}()
	return ch, nil
}

// pickTool mirrors the orchestrator's fallback heuristic so the mock
// behaves like a cooperative model.
func (m *MockClient) pickTool(req *Request, userText string) string {
	want := "restructureDiagram"
	if req.CanvasEmpty {
		want = "generateDiagram"
	} else if mockTweakRe.MatchString(userText) {
		want = "tweakDiagram"
	}
	for _, t := range req.Tools {
		if t.Name == want {
			return want
		}
	}
	if len(req.Tools) > 0 {
		return req.Tools[0].Name
	}
	return want
}

func lastUserMessage(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func splitChunks(s string, size int) []string {
	if len(s) == 0 {
		return []string{""}
	}
	var chunks []string
	for i := 0; i < len(s); i += size {
		end := i + size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[i:end])
	}
	return chunks
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
