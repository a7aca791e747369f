package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/example/sketchd/internal/domain"
	store "github.com/example/sketchd/internal/repository"
)

// progressPublisher flushes partial assistant text and reasoning to the
// ledger on a throttle so an observer sees live progress. The writes
// are best-effort and safe to race with the terminal-state write.
type progressPublisher struct {
	store     store.Store
	messageID string
	state     *runtimeState
	interval  time.Duration

	done chan struct{}
	wg   sync.WaitGroup

	lastText      string
	lastReasoning string
}

func newProgressPublisher(st store.Store, messageID string, state *runtimeState, interval time.Duration) *progressPublisher {
	return &progressPublisher{
		store:     st,
		messageID: messageID,
		state:     state,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (p *progressPublisher) start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				p.flush()
			}
		}
	}()
}

// stop halts the ticker and performs a forced final flush.
func (p *progressPublisher) stop() {
	close(p.done)
	p.wg.Wait()
	p.flush()
}

func (p *progressPublisher) flush() {
	text, reasoning := p.state.snapshotText()
	if text == p.lastText && reasoning == p.lastReasoning {
		return
	}
	patch := domain.MessagePatch{}
	if text != p.lastText {
		patch.Content = &text
	}
	if reasoning != p.lastReasoning {
		patch.ReasoningSummary = &reasoning
	}
	if err := p.store.UpdateMessage(context.Background(), p.messageID, patch); err != nil {
		log.Printf("WARN: progress flush failed for %s: %v", p.messageID, err)
		return
	}
	p.lastText = text
	p.lastReasoning = reasoning
}
