package domain

import "time"

// Session is one diagram document plus its latest committed scene.
// LatestSceneVersion only increases, by exactly 1 per successful commit;
// LatestScene is nil iff the version is 0.
type Session struct {
	SessionID          string     `json:"session_id"`
	OwnerID            string     `json:"owner_id,omitempty"`
	ThreadID           string     `json:"thread_id,omitempty"`
	LatestScene        *Scene     `json:"latest_scene,omitempty"`
	LatestSceneVersion int64      `json:"latest_scene_version"`
	SceneSavedAt       *time.Time `json:"scene_saved_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// SceneEmpty reports whether the session has no committed scene yet.
func (s *Session) SceneEmpty() bool {
	return s.LatestScene == nil || len(s.LatestScene.Elements) == 0
}
