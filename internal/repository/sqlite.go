// Package store implements the run ledger and document store on SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/sketchd/internal/domain"
)

// SQLiteStore implements the run ledger and the versioned document store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			owner_id TEXT,
			thread_id TEXT,
			latest_scene TEXT,
			latest_scene_version INTEGER NOT NULL DEFAULT 0,
			scene_saved_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			prompt_message_id TEXT NOT NULL,
			prompt_text TEXT NOT NULL,
			trace_id TEXT NOT NULL,
			actor_id TEXT,
			user_message_id TEXT NOT NULL,
			assistant_message_id TEXT NOT NULL,
			status TEXT NOT NULL,
			stop_requested INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			applied_scene_version INTEGER,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_session_prompt ON runs(session_id, prompt_message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session_created ON runs(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			run_id TEXT,
			prompt_message_id TEXT,
			role TEXT NOT NULL,
			message_type TEXT NOT NULL,
			status TEXT,
			content TEXT,
			reasoning_summary TEXT,
			tool_name TEXT,
			tool_call_id TEXT,
			tool_input TEXT,
			tool_output TEXT,
			error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_run_tool_call ON messages(run_id, tool_call_id) WHERE tool_call_id IS NOT NULL`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	var scene sql.NullString
	if session.LatestScene != nil {
		raw, err := json.Marshal(session.LatestScene)
		if err != nil {
			return fmt.Errorf("failed to marshal scene: %w", err)
		}
		scene = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, owner_id, thread_id, latest_scene, latest_scene_version, scene_saved_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, nullString(session.OwnerID), nullString(session.ThreadID),
		scene, session.LatestSceneVersion, session.SceneSavedAt, session.CreatedAt)
	return err
}

// GetSession retrieves a session by ID. Returns nil when absent.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var ownerID, threadID, scene sql.NullString
	var savedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, owner_id, thread_id, latest_scene, latest_scene_version, scene_saved_at, created_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &ownerID, &threadID, &scene, &session.LatestSceneVersion, &savedAt, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ownerID.Valid {
		session.OwnerID = ownerID.String
	}
	if threadID.Valid {
		session.ThreadID = threadID.String
	}
	if scene.Valid {
		var sc domain.Scene
		if err := json.Unmarshal([]byte(scene.String), &sc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scene: %w", err)
		}
		session.LatestScene = &sc
	}
	if savedAt.Valid {
		session.SceneSavedAt = &savedAt.Time
	}
	return &session, nil
}

// GetOrCreateSession gets an existing session or creates a new one.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, ownerID string) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &domain.Session{
		SessionID: sessionID,
		OwnerID:   ownerID,
		CreatedAt: time.Now(),
	}
	if err := s.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// SetSessionThread records the lazily created thread id.
func (s *SQLiteStore) SetSessionThread(ctx context.Context, sessionID, threadID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET thread_id = ? WHERE session_id = ?`,
		threadID, sessionID)
	return err
}

// SetLatestScene performs the single conditional write of the document
// store: the scene is stored and the version incremented by exactly 1
// only if the current version still equals expectedVersion. Returns
// false without writing when the version has moved.
func (s *SQLiteStore) SetLatestScene(ctx context.Context, sessionID string, expectedVersion int64, sceneJSON string, savedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET latest_scene = ?, latest_scene_version = latest_scene_version + 1, scene_saved_at = ?
		 WHERE session_id = ? AND latest_scene_version = ?`,
		sceneJSON, savedAt, sessionID, expectedVersion)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, session_id, thread_id, prompt_message_id, prompt_text, trace_id, actor_id, user_message_id, assistant_message_id, status, stop_requested, error, applied_scene_version, created_at, updated_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.SessionID, run.ThreadID, run.PromptMessageID, run.PromptText,
		run.TraceID, nullString(run.ActorID), run.UserMessageID, run.AssistantMessageID,
		run.Status, boolInt(run.StopRequested), nullString(run.Error), run.AppliedSceneVersion,
		run.CreatedAt, run.UpdatedAt, run.FinishedAt)
	return err
}

const runColumns = `run_id, session_id, thread_id, prompt_message_id, prompt_text, trace_id, actor_id, user_message_id, assistant_message_id, status, stop_requested, error, applied_scene_version, created_at, updated_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*domain.Run, error) {
	var run domain.Run
	var actorID, errMsg sql.NullString
	var stopRequested int
	var appliedVersion sql.NullInt64
	var finishedAt sql.NullTime
	err := row.Scan(&run.RunID, &run.SessionID, &run.ThreadID, &run.PromptMessageID,
		&run.PromptText, &run.TraceID, &actorID, &run.UserMessageID, &run.AssistantMessageID,
		&run.Status, &stopRequested, &errMsg, &appliedVersion, &run.CreatedAt, &run.UpdatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	run.StopRequested = stopRequested != 0
	if actorID.Valid {
		run.ActorID = actorID.String
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if appliedVersion.Valid {
		run.AppliedSceneVersion = &appliedVersion.Int64
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

// GetRun retrieves a run by ID. Returns nil when absent.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetRunByPrompt retrieves the run for an idempotency key. Returns nil
// when absent.
func (s *SQLiteStore) GetRunByPrompt(ctx context.Context, sessionID, promptMessageID string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE session_id = ? AND prompt_message_id = ?`,
		sessionID, promptMessageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetLatestActiveRun retrieves the most recently created non-terminal
// run for a session. Returns nil when none exists.
func (s *SQLiteStore) GetLatestActiveRun(ctx context.Context, sessionID string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs
		 WHERE session_id = ? AND status IN (?, ?, ?)
		 ORDER BY created_at DESC, run_id DESC
		 LIMIT 1`,
		sessionID, domain.RunStatusSending, domain.RunStatusRunning, domain.RunStatusApplying))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetLatestRun retrieves the most recently created run for a session
// regardless of status. Returns nil when none exists.
func (s *SQLiteStore) GetLatestRun(ctx context.Context, sessionID string) (*domain.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs
		 WHERE session_id = ?
		 ORDER BY created_at DESC, run_id DESC
		 LIMIT 1`, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// UpdateRun applies a partial update to a run, field by field.
func (s *SQLiteStore) UpdateRun(ctx context.Context, runID string, patch domain.RunPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.StopRequested != nil {
		sets = append(sets, "stop_requested = ?")
		args = append(args, boolInt(*patch.StopRequested))
	}
	if patch.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *patch.Error)
	}
	if patch.AppliedSceneVersion != nil {
		sets = append(sets, "applied_scene_version = ?")
		args = append(args, *patch.AppliedSceneVersion)
	}
	if patch.FinishedAt != nil {
		sets = append(sets, "finished_at = ?")
		args = append(args, *patch.FinishedAt)
	}
	args = append(args, runID)
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET `+strings.Join(sets, ", ")+` WHERE run_id = ?`, args...)
	return err
}

// CreateMessage creates a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, thread_id, run_id, prompt_message_id, role, message_type, status, content, reasoning_summary, tool_name, tool_call_id, tool_input, tool_output, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, message.ThreadID, nullString(message.RunID),
		nullString(message.PromptMessageID), message.Role, message.MessageType,
		nullString(string(message.Status)), message.Content, message.ReasoningSummary,
		nullString(message.ToolName), nullString(message.ToolCallID),
		nullStringBytes(message.ToolInput), nullStringBytes(message.ToolOutput),
		nullString(message.Error), message.CreatedAt, message.UpdatedAt)
	return err
}

const messageColumns = `message_id, session_id, thread_id, run_id, prompt_message_id, role, message_type, status, content, reasoning_summary, tool_name, tool_call_id, tool_input, tool_output, error, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	var msg domain.Message
	var runID, promptMessageID, status, content, reasoning, toolName, toolCallID, toolInput, toolOutput, errMsg sql.NullString
	err := row.Scan(&msg.MessageID, &msg.SessionID, &msg.ThreadID, &runID, &promptMessageID,
		&msg.Role, &msg.MessageType, &status, &content, &reasoning, &toolName, &toolCallID,
		&toolInput, &toolOutput, &errMsg, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if runID.Valid {
		msg.RunID = runID.String
	}
	if promptMessageID.Valid {
		msg.PromptMessageID = promptMessageID.String
	}
	if status.Valid {
		msg.Status = domain.MessageStatus(status.String)
	}
	if content.Valid {
		msg.Content = content.String
	}
	if reasoning.Valid {
		msg.ReasoningSummary = reasoning.String
	}
	if toolName.Valid {
		msg.ToolName = toolName.String
	}
	if toolCallID.Valid {
		msg.ToolCallID = toolCallID.String
	}
	if toolInput.Valid {
		msg.ToolInput = json.RawMessage(toolInput.String)
	}
	if toolOutput.Valid {
		msg.ToolOutput = json.RawMessage(toolOutput.String)
	}
	if errMsg.Valid {
		msg.Error = errMsg.String
	}
	return &msg, nil
}

// GetMessage retrieves a message by ID. Returns nil when absent.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return msg, err
}

// GetToolMessage retrieves the tool message for a tool-call id within a
// run. Returns nil when absent.
func (s *SQLiteStore) GetToolMessage(ctx context.Context, runID, toolCallID string) (*domain.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE run_id = ? AND tool_call_id = ?`,
		runID, toolCallID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return msg, err
}

// ListMessages retrieves the ordered message log for a session.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE session_id = ? ORDER BY created_at ASC, message_id ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// UpdateMessage applies a partial update to a message, field by field.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, messageID string, patch domain.MessagePatch) error {
	if patch.IsEmpty() {
		return nil
	}
	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.ReasoningSummary != nil {
		sets = append(sets, "reasoning_summary = ?")
		args = append(args, *patch.ReasoningSummary)
	}
	if patch.ToolOutput != nil {
		sets = append(sets, "tool_output = ?")
		args = append(args, string(patch.ToolOutput))
	}
	if patch.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *patch.Error)
	}
	args = append(args, messageID)
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET `+strings.Join(sets, ", ")+` WHERE message_id = ?`, args...)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
