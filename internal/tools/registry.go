// Package tools defines the mutation tool contract and the builtin
// generate / restructure / tweak implementations.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/sketchd/internal/domain"
)

// Result is a successful mutation: a full replacement element set plus
// optional metadata about how it was produced.
type Result struct {
	Elements []map[string]any `json:"elements"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// Failure is a structured tool failure. It is distinct from a transport
// or programming error: the tool ran and declined to produce a scene.
type Failure struct {
	Reason string `json:"reason"`
}

func (f *Failure) Error() string { return f.Reason }

// MutatorFunc is a mutation tool: given the current scene (which may be
// nil) and the request text, it returns a candidate element set or a
// *Failure.
type MutatorFunc func(ctx context.Context, current *domain.Scene, request string) (*Result, error)

// Registry stores mutation tools keyed by tool name.
type Registry struct {
	mu       sync.RWMutex
	mutators map[domain.ToolName]MutatorFunc
}

// NewRegistry creates a registry with the builtin tools installed.
func NewRegistry() *Registry {
	r := &Registry{mutators: make(map[domain.ToolName]MutatorFunc)}
	r.mustRegister(domain.ToolGenerate, GenerateDiagram)
	r.mustRegister(domain.ToolRestructure, RestructureDiagram)
	r.mustRegister(domain.ToolTweak, TweakDiagram)
	return r
}

// Register adds or replaces the mutator for a tool name. Any
// implementation satisfying MutatorFunc is interchangeable.
func (r *Registry) Register(name domain.ToolName, fn MutatorFunc) error {
	if !name.Valid() {
		return fmt.Errorf("unknown tool name %q", name)
	}
	if fn == nil {
		return fmt.Errorf("mutator is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutators[name] = fn
	return nil
}

func (r *Registry) mustRegister(name domain.ToolName, fn MutatorFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Execute runs the mutator for the tool name.
func (r *Registry) Execute(ctx context.Context, name domain.ToolName, current *domain.Scene, request string) (*Result, error) {
	r.mu.RLock()
	fn := r.mutators[name]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("no mutator registered for %s", name)
	}
	return fn(ctx, current, request)
}
