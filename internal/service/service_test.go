package service

import (
	"context"
	"testing"
	"time"

	"github.com/example/sketchd/internal/adapter/model"
	"github.com/example/sketchd/internal/config"
	"github.com/example/sketchd/internal/domain"
	"github.com/example/sketchd/internal/policy"
	store "github.com/example/sketchd/internal/repository"
	"github.com/example/sketchd/internal/tools"
	"github.com/example/sketchd/tests/helpers"
)

// scriptClient is a model client that replays a fixed event sequence.
type scriptClient struct {
	events []model.Event
	// delay is applied before each event so tests can open timing windows.
	delay time.Duration
	// block keeps the stream open after the last event until ctx is
	// cancelled, simulating a model that never finishes.
	block bool
}

func (c *scriptClient) Stream(ctx context.Context, _ *model.Request) (<-chan model.Event, error) {
	ch := make(chan model.Event)
	go func() {
		defer close(ch)
		for _, ev := range c.events {
			if c.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.delay):
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
		if c.block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func newTestService(t *testing.T, client model.Client) (*Service, store.Store) {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to build policy engine: %v", err)
	}

	cfg := &config.Config{
		ModelTimeout:          5 * time.Second,
		CancelPollInterval:    15 * time.Millisecond,
		ProgressFlushInterval: 10 * time.Millisecond,
	}
	return New(st, client, tools.NewRegistry(), engine, cfg), st
}

// waitForRun polls the store until the run reaches one of the given
// statuses.
func waitForRun(t *testing.T, st store.Store, runID string, statuses ...domain.RunStatus) *domain.Run {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		run, err := st.GetRun(context.Background(), runID)
		if err != nil {
			t.Fatalf("failed to load run %s: %v", runID, err)
		}
		if run != nil {
			for _, status := range statuses {
				if run.Status == status {
					return run
				}
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach any of %v in time", runID, statuses)
	return nil
}

func toolCallEvent(id, name, request string) model.Event {
	input, _ := model.NormalizeToolInput(request)
	return model.Event{
		Type:     model.EventToolCall,
		ToolCall: &model.ToolCall{ID: id, Name: name, Input: input},
	}
}
