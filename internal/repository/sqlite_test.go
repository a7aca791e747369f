package store

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/example/sketchd/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedSession(t *testing.T, store *SQLiteStore, sessionID string) *domain.Session {
	t.Helper()
	session := &domain.Session{
		SessionID: sessionID,
		OwnerID:   "u1",
		ThreadID:  "thread_1",
		CreatedAt: time.Now(),
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func seedRun(t *testing.T, store *SQLiteStore, runID, sessionID, promptMessageID string, status domain.RunStatus) *domain.Run {
	t.Helper()
	now := time.Now()
	run := &domain.Run{
		RunID:              runID,
		SessionID:          sessionID,
		ThreadID:           "thread_1",
		PromptMessageID:    promptMessageID,
		PromptText:         "draw something",
		TraceID:            "trace_1",
		UserMessageID:      "msg_u_" + runID,
		AssistantMessageID: "msg_a_" + runID,
		Status:             status,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	return run
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	seedSession(t, store, "s1")

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil || got.OwnerID != "u1" || got.ThreadID != "thread_1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.LatestScene != nil || got.LatestSceneVersion != 0 {
		t.Fatalf("fresh session should have no scene: %+v", got)
	}

	missing, err := store.GetSession(ctx, "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown session, got %+v", missing)
	}
}

func TestGetOrCreateSession(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.GetOrCreateSession(ctx, "s1", "owner")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	if first.OwnerID != "owner" {
		t.Fatalf("unexpected owner: %q", first.OwnerID)
	}

	second, err := store.GetOrCreateSession(ctx, "s1", "someone-else")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	if second.OwnerID != "owner" {
		t.Fatalf("existing session should keep its owner, got %q", second.OwnerID)
	}
}

func TestSetLatestSceneConditionalWrite(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSession(t, store, "s1")

	scene := `{"elements":[{"id":"el_1","type":"rectangle"}],"appState":{"zoom":1}}`

	ok, err := store.SetLatestScene(ctx, "s1", 0, scene, time.Now())
	if err != nil {
		t.Fatalf("SetLatestScene failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected first conditional write to succeed")
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.LatestSceneVersion != 1 {
		t.Fatalf("expected version 1, got %d", got.LatestSceneVersion)
	}
	if got.LatestScene == nil || len(got.LatestScene.Elements) != 1 {
		t.Fatalf("unexpected scene: %+v", got.LatestScene)
	}
	if got.SceneSavedAt == nil {
		t.Fatalf("expected scene_saved_at to be set")
	}

	// Stale expected version: no write, version unchanged.
	ok, err = store.SetLatestScene(ctx, "s1", 0, `{"elements":[],"appState":{}}`, time.Now())
	if err != nil {
		t.Fatalf("SetLatestScene failed: %v", err)
	}
	if ok {
		t.Fatalf("expected stale conditional write to be rejected")
	}
	got, _ = store.GetSession(ctx, "s1")
	if got.LatestSceneVersion != 1 || len(got.LatestScene.Elements) != 1 {
		t.Fatalf("stale write must not change the scene: %+v", got)
	}
}

func TestRunUniquePromptMessageID(t *testing.T) {
	store := newTestStore(t)
	seedSession(t, store, "s1")
	seedRun(t, store, "r1", "s1", "p1", domain.RunStatusSending)

	dup := &domain.Run{
		RunID:              "r2",
		SessionID:          "s1",
		ThreadID:           "thread_1",
		PromptMessageID:    "p1",
		PromptText:         "again",
		TraceID:            "trace_2",
		UserMessageID:      "msg_u_r2",
		AssistantMessageID: "msg_a_r2",
		Status:             domain.RunStatusSending,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	err := store.CreateRun(context.Background(), dup)
	if err == nil {
		t.Fatalf("expected unique constraint violation for duplicate prompt id")
	}
	if !strings.Contains(err.Error(), "UNIQUE constraint failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunPatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSession(t, store, "s1")
	seedRun(t, store, "r1", "s1", "p1", domain.RunStatusRunning)

	now := time.Now()
	version := int64(3)
	status := domain.RunStatusPersisted
	if err := store.UpdateRun(ctx, "r1", domain.RunPatch{
		Status:              &status,
		AppliedSceneVersion: &version,
		FinishedAt:          &now,
	}); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != domain.RunStatusPersisted {
		t.Fatalf("expected persisted, got %s", got.Status)
	}
	if got.AppliedSceneVersion == nil || *got.AppliedSceneVersion != 3 {
		t.Fatalf("unexpected applied version: %+v", got.AppliedSceneVersion)
	}
	if got.FinishedAt == nil {
		t.Fatalf("expected finished_at to be set")
	}
	// Untouched fields survive.
	if got.PromptText != "draw something" || got.StopRequested {
		t.Fatalf("patch changed untouched fields: %+v", got)
	}

	// Empty patch is a no-op.
	if err := store.UpdateRun(ctx, "r1", domain.RunPatch{}); err != nil {
		t.Fatalf("empty patch failed: %v", err)
	}
}

func TestGetLatestActiveRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSession(t, store, "s1")

	r1 := seedRun(t, store, "r1", "s1", "p1", domain.RunStatusPersisted)
	_ = r1
	time.Sleep(2 * time.Millisecond)
	seedRun(t, store, "r2", "s1", "p2", domain.RunStatusRunning)
	time.Sleep(2 * time.Millisecond)
	seedRun(t, store, "r3", "s1", "p3", domain.RunStatusStopped)

	got, err := store.GetLatestActiveRun(ctx, "s1")
	if err != nil {
		t.Fatalf("GetLatestActiveRun failed: %v", err)
	}
	if got == nil || got.RunID != "r2" {
		t.Fatalf("expected r2, got %+v", got)
	}

	latest, err := store.GetLatestRun(ctx, "s1")
	if err != nil {
		t.Fatalf("GetLatestRun failed: %v", err)
	}
	if latest == nil || latest.RunID != "r3" {
		t.Fatalf("expected r3, got %+v", latest)
	}
}

func TestMessagePatchAndToolMessage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSession(t, store, "s1")
	seedRun(t, store, "r1", "s1", "p1", domain.RunStatusRunning)

	now := time.Now()
	msg := &domain.Message{
		MessageID:   "msg_t1",
		SessionID:   "s1",
		ThreadID:    "thread_1",
		RunID:       "r1",
		Role:        domain.RoleTool,
		MessageType: domain.MessageTypeTool,
		Status:      domain.MessageStatusPending,
		ToolName:    "generateDiagram",
		ToolCallID:  "call_1",
		ToolInput:   json.RawMessage(`{"request":"draw"}`),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	// A second tool message for the same (run, tool call) is rejected;
	// later updates patch the row in place.
	dup := *msg
	dup.MessageID = "msg_t2"
	if err := store.CreateMessage(ctx, &dup); err == nil {
		t.Fatalf("expected unique constraint for duplicate tool call row")
	}

	completed := domain.MessageStatusCompleted
	if err := store.UpdateMessage(ctx, "msg_t1", domain.MessagePatch{
		Status:     &completed,
		ToolOutput: json.RawMessage(`{"elements":[]}`),
	}); err != nil {
		t.Fatalf("UpdateMessage failed: %v", err)
	}

	got, err := store.GetToolMessage(ctx, "r1", "call_1")
	if err != nil {
		t.Fatalf("GetToolMessage failed: %v", err)
	}
	if got == nil || got.Status != domain.MessageStatusCompleted {
		t.Fatalf("unexpected tool message: %+v", got)
	}
	if string(got.ToolOutput) != `{"elements":[]}` {
		t.Fatalf("unexpected tool output: %s", got.ToolOutput)
	}
	if got.ToolName != "generateDiagram" {
		t.Fatalf("patch changed untouched fields: %+v", got)
	}
}

func TestListMessagesOrdered(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSession(t, store, "s1")

	base := time.Now()
	for i, id := range []string{"m1", "m2", "m3"} {
		msg := &domain.Message{
			MessageID:   id,
			SessionID:   "s1",
			ThreadID:    "thread_1",
			Role:        domain.RoleUser,
			MessageType: domain.MessageTypeChat,
			Status:      domain.MessageStatusPersisted,
			Content:     id,
			CreatedAt:   base.Add(time.Duration(i) * time.Millisecond),
			UpdatedAt:   base,
		}
		if err := store.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	messages, err := store.ListMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, id := range []string{"m1", "m2", "m3"} {
		if messages[i].MessageID != id {
			t.Fatalf("unexpected order: %+v", messages)
		}
	}
}
