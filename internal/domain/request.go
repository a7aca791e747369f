package domain

import "time"

// EnqueueRequest is the intake payload for one edit request.
type EnqueueRequest struct {
	SessionID       string `json:"session_id"`
	PromptMessageID string `json:"prompt_message_id"`
	Prompt          string `json:"prompt"`
	TraceID         string `json:"trace_id,omitempty"`
	ActorID         string `json:"actor_id,omitempty"`
}

// EnqueueResult is returned by intake. A duplicate request returns the
// existing run's identifiers verbatim.
type EnqueueResult struct {
	Outcome            EnqueueOutcome `json:"outcome"`
	RunID              string         `json:"run_id"`
	ThreadID           string         `json:"thread_id"`
	UserMessageID      string         `json:"user_message_id"`
	AssistantMessageID string         `json:"assistant_message_id"`
	TraceID            string         `json:"trace_id"`
}

// StopResult is returned by a stop request.
type StopResult struct {
	Outcome   StopOutcome `json:"outcome"`
	RunID     string      `json:"run_id,omitempty"`
	RunStatus RunStatus   `json:"run_status,omitempty"`
}

// CommitStatus is the outcome kind of a scene commit.
type CommitStatus string

const (
	CommitSuccess  CommitStatus = "success"
	CommitConflict CommitStatus = "conflict"
	CommitFailed   CommitStatus = "failed"
)

// CommitFailReason classifies a non-conflict commit failure.
type CommitFailReason string

const (
	CommitFailSessionNotFound CommitFailReason = "session-not-found"
	CommitFailForbidden       CommitFailReason = "forbidden"
	CommitFailSceneTooLarge   CommitFailReason = "scene-too-large"
)

// CommitResult reports the outcome of the single conditional scene write.
type CommitResult struct {
	Status CommitStatus `json:"status"`

	// Success fields.
	NewVersion int64      `json:"new_version,omitempty"`
	SavedAt    *time.Time `json:"saved_at,omitempty"`

	// Conflict: the store's current version at the time of the attempt.
	CurrentVersion int64 `json:"current_version,omitempty"`

	// Failure fields.
	Reason      CommitFailReason `json:"reason,omitempty"`
	MaxBytes    int              `json:"max_bytes,omitempty"`
	ActualBytes int              `json:"actual_bytes,omitempty"`
}

// ThreadView is the read model returned by the thread query: the ordered
// message log plus a summary of the most recent run.
type ThreadView struct {
	SessionID string    `json:"session_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Messages  []Message `json:"messages"`
	LatestRun *Run      `json:"latest_run,omitempty"`
}
