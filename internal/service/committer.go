package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/sketchd/internal/domain"
)

// MaxSceneBytes is the serialized-scene size ceiling enforced before
// the conditional write.
const MaxSceneBytes = 900000

// CommitScene applies a candidate scene to the document store under
// optimistic concurrency control. The write happens only if the
// session's version still equals expectedVersion; a moved version
// returns conflict with the current version and touches nothing. There
// is no retry loop: expectedVersion is the version observed at
// run-processing start.
func (s *Service) CommitScene(ctx context.Context, sessionID, actorID string, expectedVersion int64, elements []map[string]any, appState map[string]any) (domain.CommitResult, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return domain.CommitResult{
			Status: domain.CommitFailed,
			Reason: domain.CommitFailSessionNotFound,
		}, nil
	}

	allowed, err := s.policyEngine.Allow(ctx, map[string]any{
		"session_id": sessionID,
		"owner_id":   session.OwnerID,
		"actor_id":   actorID,
	})
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("failed to evaluate commit policy: %w", err)
	}
	if !allowed {
		return domain.CommitResult{
			Status: domain.CommitFailed,
			Reason: domain.CommitFailForbidden,
		}, nil
	}

	normalized, err := normalizeElements(elements)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("failed to normalize elements: %w", err)
	}
	scene := domain.Scene{
		Elements: normalized,
		AppState: domain.SanitizeAppState(appState),
	}
	raw, err := json.Marshal(scene)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("failed to serialize scene: %w", err)
	}
	if len(raw) > MaxSceneBytes {
		return domain.CommitResult{
			Status:      domain.CommitFailed,
			Reason:      domain.CommitFailSceneTooLarge,
			MaxBytes:    MaxSceneBytes,
			ActualBytes: len(raw),
		}, nil
	}

	savedAt := time.Now()
	ok, err := s.store.SetLatestScene(ctx, sessionID, expectedVersion, string(raw), savedAt)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf("failed to write scene: %w", err)
	}
	if !ok {
		current, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return domain.CommitResult{}, fmt.Errorf("failed to read current version: %w", err)
		}
		if current == nil {
			return domain.CommitResult{
				Status: domain.CommitFailed,
				Reason: domain.CommitFailSessionNotFound,
			}, nil
		}
		return domain.CommitResult{
			Status:         domain.CommitConflict,
			CurrentVersion: current.LatestSceneVersion,
		}, nil
	}

	return domain.CommitResult{
		Status:     domain.CommitSuccess,
		NewVersion: expectedVersion + 1,
		SavedAt:    &savedAt,
	}, nil
}

// normalizeElements converts the element set to plain JSON containers.
func normalizeElements(elements []map[string]any) ([]map[string]any, error) {
	if elements == nil {
		return []map[string]any{}, nil
	}
	normalized, err := domain.NormalizeJSON(elements)
	if err != nil {
		return nil, err
	}
	list, ok := normalized.([]any)
	if !ok {
		return nil, fmt.Errorf("elements did not normalize to a list")
	}
	out := make([]map[string]any, 0, len(list))
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element did not normalize to an object")
		}
		out = append(out, m)
	}
	return out, nil
}
