// Package policy decides whether a scene commit is allowed for a session.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine guarding scene commits.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.scene_policy.decision"),
		rego.Module("scene_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Allow evaluates the commit policy for a session write.
// Input keys: owner_id, actor_id, session_id.
// The policy returns "allow" or "forbid".
func (e *Engine) Allow(ctx context.Context, input map[string]any) (bool, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy is expected to define a default decision.
		return true, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s == "allow", nil
	}
	return true, nil
}

// DefaultPolicy allows commits when the session has no recorded owner or
// the commit actor is the owner.
const DefaultPolicy = `
package scene_policy

default decision = "allow"

decision = "forbid" {
	input.owner_id != ""
	input.actor_id != input.owner_id
}
`
