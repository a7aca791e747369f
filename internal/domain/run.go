package domain

import "time"

// Run represents one edit request from intake to a terminal state.
// (SessionID, PromptMessageID) is unique: re-submitting the same pair
// returns the existing run instead of creating a second one.
type Run struct {
	RunID              string     `json:"run_id"`
	SessionID          string     `json:"session_id"`
	ThreadID           string     `json:"thread_id"`
	PromptMessageID    string     `json:"prompt_message_id"`
	PromptText         string     `json:"prompt_text"`
	TraceID            string     `json:"trace_id"`
	ActorID            string     `json:"actor_id,omitempty"`
	UserMessageID      string     `json:"user_message_id"`
	AssistantMessageID string     `json:"assistant_message_id"`
	Status             RunStatus  `json:"status"`
	StopRequested      bool       `json:"stop_requested"`
	Error              string     `json:"error,omitempty"`
	AppliedSceneVersion *int64    `json:"applied_scene_version,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
}

// RunPatch is a partial update applied field-by-field; nil fields are
// left untouched.
type RunPatch struct {
	Status              *RunStatus
	StopRequested       *bool
	Error               *string
	AppliedSceneVersion *int64
	FinishedAt          *time.Time
}

// IsEmpty reports whether the patch would change nothing.
func (p RunPatch) IsEmpty() bool {
	return p.Status == nil && p.StopRequested == nil && p.Error == nil &&
		p.AppliedSceneVersion == nil && p.FinishedAt == nil
}
