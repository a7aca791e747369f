package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SSEClient talks to a remote model gateway that streams session events
// over SSE.
type SSEClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewSSEClient creates a client for the given gateway.
func NewSSEClient(baseURL, apiKey string, timeout time.Duration) *SSEClient {
	return &SSEClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ensure SSEClient implements Client.
var _ Client = (*SSEClient)(nil)

// sseEvent is a parsed SSE frame.
type sseEvent struct {
	Event string
	Data  string
}

// Stream opens the session and forwards gateway events on the returned
// channel. Cancelling ctx aborts the HTTP stream.
func (c *SSEClient) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open model stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("model gateway returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	ch := make(chan Event)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		err := parseSSE(resp.Body, func(frame sseEvent) error {
			ev, err := decodeEvent(frame)
			if err != nil {
				// Skip frames we do not understand.
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- ev:
				return nil
			}
		})
		if err != nil && ctx.Err() == nil {
			select {
			case ch <- Event{Type: EventError, ErrorMessage: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// decodeEvent maps an SSE frame to a typed stream event.
func decodeEvent(frame sseEvent) (Event, error) {
	var ev Event
	switch EventType(frame.Event) {
	case EventTextDelta, EventReasoningDelta, EventToolCall, EventDone, EventError:
		if err := json.Unmarshal([]byte(frame.Data), &ev); err != nil {
			return Event{}, fmt.Errorf("failed to decode %s event: %w", frame.Event, err)
		}
		ev.Type = EventType(frame.Event)
		return ev, nil
	}
	return Event{}, fmt.Errorf("unknown event type %q", frame.Event)
}

// parseSSE parses an SSE stream and calls the handler for each event.
func parseSSE(reader io.Reader, handler func(sseEvent) error) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var event sseEvent

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if event.Event != "" || event.Data != "" {
				if err := handler(event); err != nil {
					return err
				}
				event = sseEvent{}
			}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if event.Data != "" {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
		}
		// Ignore comments (lines starting with :) and other fields
	}

	if event.Event != "" || event.Data != "" {
		if err := handler(event); err != nil {
			return err
		}
	}

	return scanner.Err()
}
