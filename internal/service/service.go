// Package service implements the run orchestrator: idempotent intake,
// the agent session driver, cooperative cancellation, and the scene
// committer.
package service

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/example/sketchd/internal/adapter/model"
	"github.com/example/sketchd/internal/config"
	"github.com/example/sketchd/internal/policy"
	store "github.com/example/sketchd/internal/repository"
	"github.com/example/sketchd/internal/tools"
)

// activeRunCacheSize bounds the session-to-active-run lookup cache.
const activeRunCacheSize = 1024

type Service struct {
	store        store.Store
	modelClient  model.Client
	tools        *tools.Registry
	policyEngine *policy.Engine
	config       *config.Config

	// activeRuns maps session id to the most recently enqueued run id.
	// Entries may be stale; readers verify against the store.
	activeRuns *lru.Cache[string, string]
}

func New(st store.Store, modelClient model.Client, registry *tools.Registry, policyEngine *policy.Engine, cfg *config.Config) *Service {
	cache, err := lru.New[string, string](activeRunCacheSize)
	if err != nil {
		panic(err)
	}
	return &Service{
		store:        st,
		modelClient:  modelClient,
		tools:        registry,
		policyEngine: policyEngine,
		config:       cfg,
		activeRuns:   cache,
	}
}
