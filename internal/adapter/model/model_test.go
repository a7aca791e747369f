package model

import (
	"context"
	"strings"
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestMockClientCallsExactlyOneTool(t *testing.T) {
	client := NewMockClient()
	req := &Request{
		Messages: []ChatMessage{{Role: "user", Content: "draw a 3-node flowchart"}},
		Tools: []ToolDef{
			{Name: "generateDiagram"},
			{Name: "restructureDiagram"},
			{Name: "tweakDiagram"},
		},
		RequireTool: true,
		CanvasEmpty: true,
	}

	ch, err := client.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	events := collect(t, ch)

	toolCalls := 0
	var done *Event
	for i := range events {
		switch events[i].Type {
		case EventToolCall:
			toolCalls++
			if events[i].ToolCall.Name != "generateDiagram" {
				t.Fatalf("empty canvas must pick generateDiagram, got %s", events[i].ToolCall.Name)
			}
			if events[i].ToolCall.ID == "" {
				t.Fatalf("tool call must carry an id")
			}
		case EventDone:
			done = &events[i]
		}
	}
	if toolCalls != 1 {
		t.Fatalf("expected exactly one tool call, got %d", toolCalls)
	}
	if done == nil || done.FinalText == "" {
		t.Fatalf("expected a done event with final text")
	}
}

func TestMockClientTweakKeyword(t *testing.T) {
	client := NewMockClient()
	req := &Request{
		Messages: []ChatMessage{{Role: "user", Content: "rename the second box"}},
		Tools: []ToolDef{
			{Name: "generateDiagram"},
			{Name: "restructureDiagram"},
			{Name: "tweakDiagram"},
		},
		CanvasEmpty: false,
	}
	ch, err := client.Stream(context.Background(), req)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	for _, ev := range collect(t, ch) {
		if ev.Type == EventToolCall && ev.ToolCall.Name != "tweakDiagram" {
			t.Fatalf("rename request should pick tweakDiagram, got %s", ev.ToolCall.Name)
		}
	}
}

func TestMockClientStopsOnCancel(t *testing.T) {
	client := &MockClient{ChunkDelay: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := client.Stream(ctx, &Request{
		Messages: []ChatMessage{{Role: "user", Content: "draw a huge diagram"}},
		Tools:    []ToolDef{{Name: "generateDiagram"}},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return // closed promptly after cancel
			}
		case <-deadline:
			t.Fatalf("stream did not close after cancellation")
		}
	}
}

func TestParseSSEMultiLineData(t *testing.T) {
	stream := "event: text_delta\n" +
		"data: {\"delta\":\"hel\n" +
		"data: lo\"}\n" +
		"\n" +
		"event: done\n" +
		"data: {\"final_text\":\"hello\"}\n" +
		"\n"

	var frames []sseEvent
	err := parseSSE(strings.NewReader(stream), func(ev sseEvent) error {
		frames = append(frames, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("parseSSE failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Event != "text_delta" || !strings.Contains(frames[0].Data, "\n") {
		t.Fatalf("multi-line data not joined: %+v", frames[0])
	}
	if frames[1].Event != "done" {
		t.Fatalf("unexpected second frame: %+v", frames[1])
	}
}

func TestDecodeEvent(t *testing.T) {
	ev, err := decodeEvent(sseEvent{Event: "tool_call", Data: `{"tool_call":{"id":"call_1","name":"generateDiagram"}}`})
	if err != nil {
		t.Fatalf("decodeEvent failed: %v", err)
	}
	if ev.Type != EventToolCall || ev.ToolCall == nil || ev.ToolCall.ID != "call_1" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	if _, err := decodeEvent(sseEvent{Event: "mystery", Data: "{}"}); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
}
