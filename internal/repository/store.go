package store

import (
	"context"
	"time"

	"github.com/example/sketchd/internal/domain"
)

// Store is the persistence interface for the run ledger and the
// versioned document store.
type Store interface {
	// Sessions / document store
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID, ownerID string) (*domain.Session, error)
	SetSessionThread(ctx context.Context, sessionID, threadID string) error
	SetLatestScene(ctx context.Context, sessionID string, expectedVersion int64, sceneJSON string, savedAt time.Time) (bool, error)

	// Runs
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	GetRunByPrompt(ctx context.Context, sessionID, promptMessageID string) (*domain.Run, error)
	GetLatestActiveRun(ctx context.Context, sessionID string) (*domain.Run, error)
	GetLatestRun(ctx context.Context, sessionID string) (*domain.Run, error)
	UpdateRun(ctx context.Context, runID string, patch domain.RunPatch) error

	// Messages
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessage(ctx context.Context, messageID string) (*domain.Message, error)
	GetToolMessage(ctx context.Context, runID, toolCallID string) (*domain.Message, error)
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	UpdateMessage(ctx context.Context, messageID string, patch domain.MessagePatch) error

	Close() error
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
