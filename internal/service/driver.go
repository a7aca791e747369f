package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/sketchd/internal/adapter/model"
	"github.com/example/sketchd/internal/domain"
	"github.com/example/sketchd/internal/tools"
)

const systemPrompt = `You are a diagram editing assistant. The user describes how the
diagram should be created or changed. You must call exactly one of the
available tools (generateDiagram, restructureDiagram, tweakDiagram) to
produce the change, then summarize what you did in one or two sentences.`

// processRun drives one run from sending to a terminal state. It is the
// only writer of the run's lifecycle besides the cancellation
// controller; concurrent runs against the same session are arbitrated
// solely by the conditional scene write.
func (s *Service) processRun(runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ModelTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: run %s panicked: %v", runID, r)
			s.finishError(runID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		log.Printf("ERROR: failed to load run %s: %v", runID, err)
		return
	}
	if run == nil {
		log.Printf("ERROR: run %s not found", runID)
		return
	}
	// Terminal runs are never reprocessed.
	if run.Status.IsTerminal() {
		return
	}

	session, err := s.store.GetSession(ctx, run.SessionID)
	if err != nil || session == nil {
		s.finishError(runID, "session not found")
		return
	}
	// The OCC base version is read once, here, never mid-run.
	expectedVersion := session.LatestSceneVersion

	running := domain.RunStatusRunning
	if err := s.store.UpdateRun(ctx, runID, domain.RunPatch{Status: &running}); err != nil {
		log.Printf("ERROR: failed to mark run %s running: %v", runID, err)
	}

	state := newRuntimeState()

	// Cancellation poller: reads the stop flag on a fixed interval and
	// aborts the model stream when set. Cancellation is cooperative and
	// bounded by this interval.
	pollerDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.config.CancelPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pollerDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := s.store.GetRun(context.Background(), runID)
				if err != nil {
					log.Printf("WARN: cancel poll failed for %s: %v", runID, err)
					continue
				}
				if current != nil && current.StopRequested {
					state.markAborted()
					cancel()
					return
				}
			}
		}
	}()

	publisher := newProgressPublisher(s.store, run.AssistantMessageID, state, s.config.ProgressFlushInterval)
	publisher.start()

	streamErr := s.consumeStream(ctx, run, session, state)

	publisher.stop()

	if state.isAborted() {
		close(pollerDone)
		s.finishStopped(run)
		return
	}
	if streamErr != nil {
		close(pollerDone)
		s.finishError(runID, domain.TruncateError("model stream failed: "+streamErr.Error()))
		return
	}

	// The poller stays up through the fallback phase so a stop request
	// can still abort tool execution.
	if elements, _ := state.getProposedScene(); elements == nil {
		// The model finished without a committed candidate: replay the
		// recorded tool call once, then synthesize a fallback.
		s.runFallback(ctx, run, session, state)
	}
	close(pollerDone)
	if state.isAborted() {
		s.finishStopped(run)
		return
	}

	// A stop request that landed after the last poll must win before the
	// commit. Terminal runs are never reprocessed.
	current, err := s.store.GetRun(context.Background(), runID)
	if err != nil || current == nil {
		log.Printf("ERROR: failed to re-load run %s: %v", runID, err)
		return
	}
	if current.Status.IsTerminal() {
		return
	}
	if current.StopRequested {
		s.finishStopped(run)
		return
	}

	elements, toolUsed := state.getProposedScene()
	if elements == nil {
		reason := "no diagram change produced"
		if summary := state.failureSummary(); summary != "" {
			reason += ": " + summary
		}
		s.finishError(runID, domain.TruncateError(reason))
		return
	}

	applying := domain.RunStatusApplying
	if err := s.store.UpdateRun(ctx, runID, domain.RunPatch{Status: &applying}); err != nil {
		log.Printf("ERROR: failed to mark run %s applying: %v", runID, err)
	}

	appState := map[string]any{}
	if session.LatestScene != nil && session.LatestScene.AppState != nil {
		appState = session.LatestScene.AppState
	}
	result, err := s.CommitScene(context.Background(), run.SessionID, run.ActorID, expectedVersion, elements, appState)
	if err != nil {
		s.finishError(runID, domain.TruncateError("failed to apply scene: "+err.Error()))
		return
	}

	switch result.Status {
	case domain.CommitSuccess:
		s.finishPersisted(run, state, result.NewVersion, toolUsed)
	case domain.CommitConflict:
		s.finishError(runID, fmt.Sprintf("the diagram changed while this edit was running (now at version %d); reload and retry", result.CurrentVersion))
	case domain.CommitFailed:
		s.finishError(runID, domain.TruncateError(commitFailureMessage(result)))
	}
}

// consumeStream drives the model session and applies tool calls as they
// arrive. Returns a non-nil error only for non-abort stream failures.
func (s *Service) consumeStream(ctx context.Context, run *domain.Run, session *domain.Session, state *runtimeState) error {
	req := &model.Request{
		SystemPrompt: systemPrompt,
		Messages:     s.buildHistory(ctx, run),
		Tools: []model.ToolDef{
			{Name: string(domain.ToolGenerate), Description: "Create a new diagram from scratch. The only valid tool when the canvas is empty."},
			{Name: string(domain.ToolRestructure), Description: "Derive a reorganized full replacement of the current diagram."},
			{Name: string(domain.ToolTweak), Description: "Apply a small stylistic or textual adjustment to the current diagram."},
		},
		RequireTool: true,
		CanvasEmpty: session.SceneEmpty(),
	}

	events, err := s.modelClient.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil && state.isAborted() {
			return nil
		}
		return err
	}

	var streamErr error
	for ev := range events {
		switch ev.Type {
		case model.EventTextDelta:
			state.appendText(ev.Delta)
		case model.EventReasoningDelta:
			state.appendReasoning(ev.Delta)
		case model.EventToolCall:
			if ev.ToolCall != nil {
				s.applyToolCall(ctx, run, session, ev.ToolCall, state)
			}
		case model.EventDone:
			state.setFinal(ev.FinalText, ev.FinalReasoning)
		case model.EventError:
			streamErr = errors.New(ev.ErrorMessage)
		}
	}
	if state.isAborted() {
		return nil
	}
	if streamErr == nil && ctx.Err() != nil {
		streamErr = ctx.Err()
	}
	return streamErr
}

// buildHistory assembles the ordered chat history, excluding messages
// belonging to the current prompt (in-flight duplicates stay out of
// context), and appends the current request as the final user turn.
func (s *Service) buildHistory(ctx context.Context, run *domain.Run) []model.ChatMessage {
	var history []model.ChatMessage
	messages, err := s.store.ListMessages(ctx, run.SessionID)
	if err != nil {
		log.Printf("WARN: failed to load history for %s: %v", run.RunID, err)
		messages = nil
	}
	for _, msg := range messages {
		if msg.MessageType != domain.MessageTypeChat {
			continue
		}
		if msg.PromptMessageID == run.PromptMessageID {
			continue
		}
		if msg.Content == "" {
			continue
		}
		history = append(history, model.ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	history = append(history, model.ChatMessage{Role: string(domain.RoleUser), Content: run.PromptText})
	return history
}

// applyToolCall records a durable tool message for the call, executes
// the mutation tool, and stores the candidate scene in the runtime
// state. The tool message is keyed by the model's tool-call id so a
// replay can recognize a call that already ran.
func (s *Service) applyToolCall(ctx context.Context, run *domain.Run, session *domain.Session, call *model.ToolCall, state *runtimeState) {
	state.setLatestToolCall(call)

	name := domain.ToolName(call.Name)
	if !name.Valid() {
		state.recordToolFailure(fmt.Sprintf("unknown tool %q", call.Name))
		return
	}

	request := run.PromptText
	var input struct {
		Request string `json:"request"`
	}
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &input); err == nil && input.Request != "" {
			request = input.Request
		}
	}

	now := time.Now()
	existing, err := s.store.GetToolMessage(ctx, run.RunID, call.ID)
	if err != nil {
		log.Printf("ERROR: failed to load tool message for %s/%s: %v", run.RunID, call.ID, err)
	}
	if existing == nil {
		msg := &domain.Message{
			MessageID:   "msg_" + call.ID,
			SessionID:   run.SessionID,
			ThreadID:    run.ThreadID,
			RunID:       run.RunID,
			Role:        domain.RoleTool,
			MessageType: domain.MessageTypeTool,
			Status:      domain.MessageStatusPending,
			ToolName:    call.Name,
			ToolCallID:  call.ID,
			ToolInput:   call.Input,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.CreateMessage(ctx, msg); err != nil {
			log.Printf("ERROR: failed to create tool message: %v", err)
		}
		existing = msg
	} else if existing.Status == domain.MessageStatusCompleted && len(existing.ToolOutput) > 0 {
		// The call already ran to completion (crash/replay path): reuse
		// its recorded result instead of re-executing.
		var recorded tools.Result
		if err := json.Unmarshal(existing.ToolOutput, &recorded); err == nil && recorded.Elements != nil {
			state.setProposedScene(recorded.Elements, name)
			return
		}
	}

	runningStatus := domain.MessageStatusRunning
	if err := s.store.UpdateMessage(ctx, existing.MessageID, domain.MessagePatch{Status: &runningStatus}); err != nil {
		log.Printf("ERROR: failed to mark tool message running: %v", err)
	}

	result, execErr := s.tools.Execute(ctx, name, session.LatestScene, request)
	if execErr != nil {
		reason := execErr.Error()
		var failure *tools.Failure
		if errors.As(execErr, &failure) {
			reason = failure.Reason
		}
		state.recordToolFailure(fmt.Sprintf("%s: %s", call.Name, reason))

		errStatus := domain.MessageStatusError
		if err := s.store.UpdateMessage(ctx, existing.MessageID, domain.MessagePatch{
			Status: &errStatus,
			Error:  strPtr(domain.TruncateError(reason)),
		}); err != nil {
			log.Printf("ERROR: failed to record tool failure: %v", err)
		}
		return
	}

	output, err := json.Marshal(result)
	if err != nil {
		log.Printf("ERROR: failed to marshal tool output: %v", err)
		output = nil
	}
	completed := domain.MessageStatusCompleted
	if err := s.store.UpdateMessage(ctx, existing.MessageID, domain.MessagePatch{
		Status:     &completed,
		ToolOutput: output,
	}); err != nil {
		log.Printf("ERROR: failed to record tool result: %v", err)
	}

	state.setProposedScene(result.Elements, name)
}

// finishPersisted records the happy-path terminal state.
func (s *Service) finishPersisted(run *domain.Run, state *runtimeState, newVersion int64, toolUsed domain.ToolName) {
	ctx := context.Background()
	current, err := s.store.GetRun(ctx, run.RunID)
	if err != nil || current == nil || current.Status.IsTerminal() {
		return
	}
	now := time.Now()
	persisted := domain.RunStatusPersisted
	if err := s.store.UpdateRun(ctx, run.RunID, domain.RunPatch{
		Status:              &persisted,
		AppliedSceneVersion: &newVersion,
		FinishedAt:          &now,
	}); err != nil {
		log.Printf("ERROR: failed to mark run %s persisted: %v", run.RunID, err)
	}

	text, reasoning := state.snapshotText()
	if text == "" {
		text = fmt.Sprintf("Applied the diagram change with %s.", toolUsed)
	}
	msgPersisted := domain.MessageStatusPersisted
	if err := s.store.UpdateMessage(ctx, run.AssistantMessageID, domain.MessagePatch{
		Status:           &msgPersisted,
		Content:          &text,
		ReasoningSummary: &reasoning,
	}); err != nil {
		log.Printf("ERROR: failed to finalize assistant message for %s: %v", run.RunID, err)
	}
}

// finishStopped records the cancellation terminal state. The run row is
// usually already stopped by the cancellation controller, in which case
// there is nothing left to write.
func (s *Service) finishStopped(run *domain.Run) {
	ctx := context.Background()
	current, err := s.store.GetRun(ctx, run.RunID)
	if err != nil {
		log.Printf("ERROR: failed to load run %s for stop finish: %v", run.RunID, err)
		return
	}
	if current == nil || current.Status.IsTerminal() {
		return
	}
	now := time.Now()
	stopped := domain.RunStatusStopped
	if err := s.store.UpdateRun(ctx, run.RunID, domain.RunPatch{
		Status:     &stopped,
		FinishedAt: &now,
	}); err != nil {
		log.Printf("ERROR: failed to mark run %s stopped: %v", run.RunID, err)
	}
	msgStopped := domain.MessageStatusStopped
	if err := s.store.UpdateMessage(ctx, run.AssistantMessageID, domain.MessagePatch{Status: &msgStopped}); err != nil {
		log.Printf("ERROR: failed to mark assistant message stopped for %s: %v", run.RunID, err)
	}
}

// finishError records the error terminal state with a human-readable
// message on both the run and the assistant message.
func (s *Service) finishError(runID, message string) {
	ctx := context.Background()
	run, err := s.store.GetRun(ctx, runID)
	if err != nil || run == nil {
		log.Printf("ERROR: failed to load run %s for error finish: %v", runID, err)
		return
	}
	if run.Status.IsTerminal() {
		return
	}
	now := time.Now()
	errStatus := domain.RunStatusError
	if err := s.store.UpdateRun(ctx, runID, domain.RunPatch{
		Status:     &errStatus,
		Error:      &message,
		FinishedAt: &now,
	}); err != nil {
		log.Printf("ERROR: failed to mark run %s errored: %v", runID, err)
	}
	msgError := domain.MessageStatusError
	if err := s.store.UpdateMessage(ctx, run.AssistantMessageID, domain.MessagePatch{
		Status: &msgError,
		Error:  &message,
	}); err != nil {
		log.Printf("ERROR: failed to record assistant error for %s: %v", runID, err)
	}
}

func commitFailureMessage(result domain.CommitResult) string {
	switch result.Reason {
	case domain.CommitFailSceneTooLarge:
		return fmt.Sprintf("scene too large: %d bytes exceeds the %d byte limit", result.ActualBytes, result.MaxBytes)
	case domain.CommitFailForbidden:
		return "not allowed to modify this diagram"
	case domain.CommitFailSessionNotFound:
		return "session not found"
	}
	return fmt.Sprintf("commit failed: %s", result.Reason)
}

func strPtr(s string) *string { return &s }
