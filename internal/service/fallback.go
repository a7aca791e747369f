package service

import (
	"context"
	"regexp"

	"github.com/google/uuid"

	"github.com/example/sketchd/internal/adapter/model"
	"github.com/example/sketchd/internal/domain"
)

// tweakKeywordRe is a best-effort classifier for requests that only
// need a small adjustment. The exact word set is replaceable policy.
var tweakKeywordRe = regexp.MustCompile(`(?i)\b(rename|label|text|color|colour|style|font|spacing|align|minor)\b|small tweak`)

// classifyFallbackTool picks the tool to synthesize when the model
// produced none: empty scene means generate, tweak-looking requests
// mean tweak, everything else means restructure.
func classifyFallbackTool(prompt string, sceneEmpty bool) domain.ToolName {
	if sceneEmpty {
		return domain.ToolGenerate
	}
	if tweakKeywordRe.MatchString(prompt) {
		return domain.ToolTweak
	}
	return domain.ToolRestructure
}

// runFallback guarantees the driver either produces a candidate scene
// or a fully explained failure. The stream's recorded tool call, if
// any, is replayed exactly once; failing that, a fallback invocation is
// synthesized by the fixed heuristic.
func (s *Service) runFallback(ctx context.Context, run *domain.Run, session *domain.Session, state *runtimeState) {
	if state.isAborted() {
		return
	}

	if last := state.getLatestToolCall(); last != nil {
		s.applyToolCall(ctx, run, session, last, state)
		if elements, _ := state.getProposedScene(); elements != nil {
			return
		}
	}
	if state.isAborted() {
		return
	}

	name := classifyFallbackTool(run.PromptText, session.SceneEmpty())
	input, _ := model.NormalizeToolInput(run.PromptText)
	s.applyToolCall(ctx, run, session, &model.ToolCall{
		ID:    "call_fb_" + uuid.New().String()[:8],
		Name:  string(name),
		Input: input,
	}, state)
}
