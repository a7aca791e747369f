package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/sketchd/internal/domain"
)

// EnqueuePrompt idempotently turns an edit request into a run plus its
// user and assistant messages and schedules the driver. Re-submitting
// the same (sessionId, promptMessageId) returns the existing run
// verbatim with no new writes and no second driver.
func (s *Service) EnqueuePrompt(ctx context.Context, req domain.EnqueueRequest) (*domain.EnqueueResult, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if req.PromptMessageID == "" {
		return nil, fmt.Errorf("prompt_message_id is required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}

	if existing, err := s.store.GetRunByPrompt(ctx, req.SessionID, req.PromptMessageID); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	} else if existing != nil {
		return duplicateResult(existing), nil
	}

	session, err := s.store.GetOrCreateSession(ctx, req.SessionID, req.ActorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create session: %w", err)
	}

	// Lazily create the conversation thread on first run.
	threadID := session.ThreadID
	if threadID == "" {
		threadID = "thread_" + uuid.New().String()[:8]
		if err := s.store.SetSessionThread(ctx, session.SessionID, threadID); err != nil {
			return nil, fmt.Errorf("failed to set thread: %w", err)
		}
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = "trace_" + uuid.New().String()[:8]
	}

	now := time.Now()
	run := &domain.Run{
		RunID:              "run_" + uuid.New().String()[:8],
		SessionID:          session.SessionID,
		ThreadID:           threadID,
		PromptMessageID:    req.PromptMessageID,
		PromptText:         prompt,
		TraceID:            traceID,
		ActorID:            req.ActorID,
		UserMessageID:      "msg_" + uuid.New().String()[:8],
		AssistantMessageID: "msg_" + uuid.New().String()[:8],
		Status:             domain.RunStatusSending,
		StopRequested:      false,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// The unique (session_id, prompt_message_id) index makes the run
	// insert the idempotency gate: a concurrent duplicate loses here,
	// before any message rows exist.
	if err := s.store.CreateRun(ctx, run); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			existing, lookupErr := s.store.GetRunByPrompt(ctx, req.SessionID, req.PromptMessageID)
			if lookupErr == nil && existing != nil {
				return duplicateResult(existing), nil
			}
		}
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	userMsg := &domain.Message{
		MessageID:       run.UserMessageID,
		SessionID:       session.SessionID,
		ThreadID:        threadID,
		RunID:           run.RunID,
		PromptMessageID: req.PromptMessageID,
		Role:            domain.RoleUser,
		MessageType:     domain.MessageTypeChat,
		Status:          domain.MessageStatusPersisted,
		Content:         prompt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateMessage(ctx, userMsg); err != nil {
		s.abandonRun(ctx, run.RunID, "intake failed: user message not recorded")
		return nil, fmt.Errorf("failed to create user message: %w", err)
	}

	assistantMsg := &domain.Message{
		MessageID:       run.AssistantMessageID,
		SessionID:       session.SessionID,
		ThreadID:        threadID,
		RunID:           run.RunID,
		PromptMessageID: req.PromptMessageID,
		Role:            domain.RoleAssistant,
		MessageType:     domain.MessageTypeChat,
		Status:          domain.MessageStatusSending,
		Content:         "",
		CreatedAt:       now.Add(time.Millisecond),
		UpdatedAt:       now,
	}
	if err := s.store.CreateMessage(ctx, assistantMsg); err != nil {
		s.abandonRun(ctx, run.RunID, "intake failed: assistant message not recorded")
		return nil, fmt.Errorf("failed to create assistant message: %w", err)
	}

	s.activeRuns.Add(session.SessionID, run.RunID)
	go s.processRun(run.RunID)

	return &domain.EnqueueResult{
		Outcome:            domain.EnqueueOutcomeEnqueued,
		RunID:              run.RunID,
		ThreadID:           threadID,
		UserMessageID:      run.UserMessageID,
		AssistantMessageID: run.AssistantMessageID,
		TraceID:            traceID,
	}, nil
}

// abandonRun marks a run terminal when intake fails after the run row
// was written. Without this a half-created run would sit in sending
// forever with no driver scheduled.
func (s *Service) abandonRun(ctx context.Context, runID, reason string) {
	errStatus := domain.RunStatusError
	now := time.Now()
	if err := s.store.UpdateRun(ctx, runID, domain.RunPatch{
		Status:     &errStatus,
		Error:      &reason,
		FinishedAt: &now,
	}); err != nil {
		log.Printf("ERROR: failed to abandon run %s: %v", runID, err)
	}
}

func duplicateResult(run *domain.Run) *domain.EnqueueResult {
	return &domain.EnqueueResult{
		Outcome:            domain.EnqueueOutcomeDuplicate,
		RunID:              run.RunID,
		ThreadID:           run.ThreadID,
		UserMessageID:      run.UserMessageID,
		AssistantMessageID: run.AssistantMessageID,
		TraceID:            run.TraceID,
	}
}
