// Package domain defines the core domain models for the orchestrator.
package domain

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusSending   RunStatus = "sending"
	RunStatusRunning   RunStatus = "running"
	RunStatusApplying  RunStatus = "applying"
	RunStatusPersisted RunStatus = "persisted"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusError     RunStatus = "error"
)

// IsTerminal reports whether a run in this status is finished for good.
// Terminal runs are never reprocessed.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusPersisted, RunStatusStopped, RunStatusError:
		return true
	case RunStatusSending, RunStatusRunning, RunStatusApplying:
		return false
	}
	return false
}

// MessageRole represents the author of a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// MessageType distinguishes chat messages from tool invocation records.
type MessageType string

const (
	MessageTypeChat MessageType = "chat"
	MessageTypeTool MessageType = "tool"
)

// MessageStatus represents the lifecycle state of a message.
// Chat messages use sending/persisted/stopped/error; tool messages use
// pending/running/completed/error.
type MessageStatus string

const (
	MessageStatusSending   MessageStatus = "sending"
	MessageStatusPersisted MessageStatus = "persisted"
	MessageStatusStopped   MessageStatus = "stopped"
	MessageStatusError     MessageStatus = "error"

	MessageStatusPending   MessageStatus = "pending"
	MessageStatusRunning   MessageStatus = "running"
	MessageStatusCompleted MessageStatus = "completed"
)

// ToolName identifies one of the three mutation tools.
type ToolName string

const (
	ToolGenerate    ToolName = "generateDiagram"
	ToolRestructure ToolName = "restructureDiagram"
	ToolTweak       ToolName = "tweakDiagram"
)

// Valid reports whether the name is one of the callable mutation tools.
func (t ToolName) Valid() bool {
	switch t {
	case ToolGenerate, ToolRestructure, ToolTweak:
		return true
	}
	return false
}

// EnqueueOutcome is the result kind of an intake call.
type EnqueueOutcome string

const (
	EnqueueOutcomeEnqueued  EnqueueOutcome = "enqueued"
	EnqueueOutcomeDuplicate EnqueueOutcome = "duplicate"
)

// StopOutcome is the result kind of a stop request.
type StopOutcome string

const (
	StopOutcomeNotFound  StopOutcome = "not-found"
	StopOutcomeRequested StopOutcome = "requested"
)
