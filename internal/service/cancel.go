package service

import (
	"context"
	"fmt"
	"time"

	"github.com/example/sketchd/internal/domain"
)

// StopPrompt marks a run as stop-requested. The write is a signal: the
// driver observes it on its poll interval, it is not interrupted here.
// When the exact prompt id is unknown (the caller's id has not reached
// the ledger yet) the most recently created non-terminal run for the
// session is used instead.
func (s *Service) StopPrompt(ctx context.Context, sessionID, promptMessageID string) (*domain.StopResult, error) {
	run, err := s.store.GetRunByPrompt(ctx, sessionID, promptMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if run == nil {
		run, err = s.latestActiveRun(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}
	if run == nil {
		return &domain.StopResult{Outcome: domain.StopOutcomeNotFound}, nil
	}

	stopRequested := true
	if run.Status.IsTerminal() {
		// Leave the terminal status untouched but still record the signal.
		if err := s.store.UpdateRun(ctx, run.RunID, domain.RunPatch{StopRequested: &stopRequested}); err != nil {
			return nil, fmt.Errorf("failed to update run: %w", err)
		}
		return &domain.StopResult{
			Outcome:   domain.StopOutcomeRequested,
			RunID:     run.RunID,
			RunStatus: run.Status,
		}, nil
	}

	now := time.Now()
	stopped := domain.RunStatusStopped
	if err := s.store.UpdateRun(ctx, run.RunID, domain.RunPatch{
		Status:        &stopped,
		StopRequested: &stopRequested,
		FinishedAt:    &now,
	}); err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}

	msgStopped := domain.MessageStatusStopped
	if err := s.store.UpdateMessage(ctx, run.AssistantMessageID, domain.MessagePatch{Status: &msgStopped}); err != nil {
		return nil, fmt.Errorf("failed to update assistant message: %w", err)
	}

	return &domain.StopResult{
		Outcome:   domain.StopOutcomeRequested,
		RunID:     run.RunID,
		RunStatus: domain.RunStatusStopped,
	}, nil
}

// latestActiveRun resolves the newest non-terminal run for a session,
// preferring the bounded cache over a ledger scan.
func (s *Service) latestActiveRun(ctx context.Context, sessionID string) (*domain.Run, error) {
	if runID, ok := s.activeRuns.Get(sessionID); ok {
		run, err := s.store.GetRun(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to get cached run: %w", err)
		}
		if run != nil && !run.Status.IsTerminal() {
			return run, nil
		}
	}
	run, err := s.store.GetLatestActiveRun(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active run: %w", err)
	}
	return run, nil
}
