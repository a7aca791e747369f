package service

import (
	"strings"
	"sync"

	"github.com/example/sketchd/internal/adapter/model"
	"github.com/example/sketchd/internal/domain"
)

// runtimeState accumulates the in-flight result of one model session.
// It is shared between the stream consumer, the cancellation poller,
// and the progress publisher.
type runtimeState struct {
	mu sync.Mutex

	assistantText  strings.Builder
	reasoningText  strings.Builder
	proposedScene  []map[string]any
	toolUsed       domain.ToolName
	latestToolCall *model.ToolCall
	toolFailures   []string
	aborted        bool
}

func newRuntimeState() *runtimeState {
	return &runtimeState{}
}

func (r *runtimeState) appendText(delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assistantText.WriteString(delta)
}

func (r *runtimeState) appendReasoning(delta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasoningText.WriteString(delta)
}

// setFinal replaces the accumulated text with the stream's final values
// when they are present.
func (r *runtimeState) setFinal(text, reasoning string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if text != "" {
		r.assistantText.Reset()
		r.assistantText.WriteString(text)
	}
	if reasoning != "" {
		r.reasoningText.Reset()
		r.reasoningText.WriteString(reasoning)
	}
}

func (r *runtimeState) snapshotText() (assistant, reasoning string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assistantText.String(), r.reasoningText.String()
}

func (r *runtimeState) setLatestToolCall(call *model.ToolCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latestToolCall = call
}

func (r *runtimeState) getLatestToolCall() *model.ToolCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latestToolCall
}

func (r *runtimeState) setProposedScene(elements []map[string]any, tool domain.ToolName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposedScene = elements
	r.toolUsed = tool
}

func (r *runtimeState) getProposedScene() ([]map[string]any, domain.ToolName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proposedScene, r.toolUsed
}

func (r *runtimeState) recordToolFailure(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolFailures = append(r.toolFailures, reason)
}

func (r *runtimeState) failureSummary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.toolFailures, "; ")
}

func (r *runtimeState) markAborted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted = true
}

func (r *runtimeState) isAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}
