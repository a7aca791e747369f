package service

import (
	"context"
	"fmt"

	"github.com/example/sketchd/internal/domain"
)

// ListThread returns the ordered message log for a session plus a
// summary of its most recent run. Read-only.
func (s *Service) ListThread(ctx context.Context, sessionID string) (*domain.ThreadView, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}

	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	latest, err := s.store.GetLatestRun(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest run: %w", err)
	}

	if messages == nil {
		messages = []domain.Message{}
	}
	return &domain.ThreadView{
		SessionID: sessionID,
		ThreadID:  session.ThreadID,
		Messages:  messages,
		LatestRun: latest,
	}, nil
}

// GetRun returns a single run by its idempotency key. Read-only.
func (s *Service) GetRun(ctx context.Context, sessionID, promptMessageID string) (*domain.Run, error) {
	run, err := s.store.GetRunByPrompt(ctx, sessionID, promptMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}
