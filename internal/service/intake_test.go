package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sketchd/internal/adapter/model"
	"github.com/example/sketchd/internal/config"
	"github.com/example/sketchd/internal/domain"
	"github.com/example/sketchd/internal/policy"
	store "github.com/example/sketchd/internal/repository"
	"github.com/example/sketchd/internal/tools"
	"github.com/example/sketchd/tests/helpers"
)

func TestEnqueuePromptCreatesRunAndMessages(t *testing.T) {
	svc, st := newTestService(t, model.NewMockClient())
	ctx := context.Background()

	result, err := svc.EnqueuePrompt(ctx, domain.EnqueueRequest{
		SessionID:       "sess-1",
		PromptMessageID: "prompt-1",
		Prompt:          "draw a simple flowchart",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EnqueueOutcomeEnqueued, result.Outcome)
	assert.NotEmpty(t, result.RunID)
	assert.NotEmpty(t, result.ThreadID)
	assert.NotEmpty(t, result.TraceID)
	assert.NotEqual(t, result.UserMessageID, result.AssistantMessageID)

	run, err := st.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "prompt-1", run.PromptMessageID)
	assert.Equal(t, "draw a simple flowchart", run.PromptText)

	userMsg, err := st.GetMessage(ctx, result.UserMessageID)
	require.NoError(t, err)
	require.NotNil(t, userMsg)
	assert.Equal(t, domain.RoleUser, userMsg.Role)
	assert.Equal(t, domain.MessageStatusPersisted, userMsg.Status)
	assert.Equal(t, "draw a simple flowchart", userMsg.Content)

	assistantMsg, err := st.GetMessage(ctx, result.AssistantMessageID)
	require.NoError(t, err)
	require.NotNil(t, assistantMsg)
	assert.Equal(t, domain.RoleAssistant, assistantMsg.Role)

	waitForRun(t, st, result.RunID, domain.RunStatusPersisted)
}

func TestEnqueuePromptDuplicateReturnsExistingRun(t *testing.T) {
	svc, st := newTestService(t, model.NewMockClient())
	ctx := context.Background()

	first, err := svc.EnqueuePrompt(ctx, domain.EnqueueRequest{
		SessionID:       "sess-1",
		PromptMessageID: "prompt-1",
		Prompt:          "draw a flowchart",
	})
	require.NoError(t, err)
	waitForRun(t, st, first.RunID, domain.RunStatusPersisted)

	// Same idempotency key, even with a different prompt body.
	second, err := svc.EnqueuePrompt(ctx, domain.EnqueueRequest{
		SessionID:       "sess-1",
		PromptMessageID: "prompt-1",
		Prompt:          "something else entirely",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EnqueueOutcomeDuplicate, second.Outcome)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.ThreadID, second.ThreadID)
	assert.Equal(t, first.UserMessageID, second.UserMessageID)
	assert.Equal(t, first.AssistantMessageID, second.AssistantMessageID)
	assert.Equal(t, first.TraceID, second.TraceID)

	// No second pair of chat messages was written.
	messages, err := st.ListMessages(ctx, "sess-1")
	require.NoError(t, err)
	chat := 0
	for _, msg := range messages {
		if msg.MessageType == domain.MessageTypeChat {
			chat++
		}
	}
	assert.Equal(t, 2, chat)
}

func TestEnqueuePromptEmptyPrompt(t *testing.T) {
	svc, _ := newTestService(t, model.NewMockClient())

	_, err := svc.EnqueuePrompt(context.Background(), domain.EnqueueRequest{
		SessionID:       "sess-1",
		PromptMessageID: "prompt-1",
		Prompt:          "   ",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmptyPrompt))
}

func TestEnqueuePromptMissingIdentifiers(t *testing.T) {
	svc, _ := newTestService(t, model.NewMockClient())
	ctx := context.Background()

	_, err := svc.EnqueuePrompt(ctx, domain.EnqueueRequest{
		PromptMessageID: "prompt-1",
		Prompt:          "draw something",
	})
	require.Error(t, err)

	_, err = svc.EnqueuePrompt(ctx, domain.EnqueueRequest{
		SessionID: "sess-1",
		Prompt:    "draw something",
	})
	require.Error(t, err)
}

// messageFailStore delegates to a real store but rejects every message
// insert.
type messageFailStore struct {
	store.Store
}

func (f *messageFailStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	return errors.New("disk full")
}

func TestEnqueuePromptMessageFailureDoesNotStrandRun(t *testing.T) {
	base := helpers.NewTestSQLiteStore(t)
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	cfg := &config.Config{
		ModelTimeout:          5 * time.Second,
		CancelPollInterval:    15 * time.Millisecond,
		ProgressFlushInterval: 10 * time.Millisecond,
	}
	svc := New(&messageFailStore{Store: base}, model.NewMockClient(), tools.NewRegistry(), engine, cfg)
	ctx := context.Background()

	_, err = svc.EnqueuePrompt(ctx, domain.EnqueueRequest{
		SessionID:       "sess-1",
		PromptMessageID: "prompt-1",
		Prompt:          "draw a flowchart",
	})
	require.Error(t, err)

	// The half-created run must not sit in sending forever: it has no
	// driver, so intake marks it terminal.
	run, err := base.GetRunByPrompt(ctx, "sess-1", "prompt-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, domain.RunStatusError, run.Status)
	assert.NotEmpty(t, run.Error)
	assert.NotNil(t, run.FinishedAt)
}

func TestEnqueuePromptReusesThread(t *testing.T) {
	svc, st := newTestService(t, model.NewMockClient())
	ctx := context.Background()

	first, err := svc.EnqueuePrompt(ctx, domain.EnqueueRequest{
		SessionID:       "sess-1",
		PromptMessageID: "prompt-1",
		Prompt:          "draw a flowchart",
	})
	require.NoError(t, err)
	waitForRun(t, st, first.RunID, domain.RunStatusPersisted)

	second, err := svc.EnqueuePrompt(ctx, domain.EnqueueRequest{
		SessionID:       "sess-1",
		PromptMessageID: "prompt-2",
		Prompt:          "rename the first box",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.EnqueueOutcomeEnqueued, second.Outcome)
	assert.Equal(t, first.ThreadID, second.ThreadID)
	assert.NotEqual(t, first.RunID, second.RunID)
	waitForRun(t, st, second.RunID, domain.RunStatusPersisted)
}
