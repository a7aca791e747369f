package domain

import "encoding/json"

// Scene is a diagram's element set plus its view state.
type Scene struct {
	Elements []map[string]any `json:"elements"`
	AppState map[string]any   `json:"appState"`
}

// transientAppStateKeys are view-state keys that are UI-session-local and
// not meaningful document state. They are stripped before a scene is
// committed.
var transientAppStateKeys = []string{
	"selectedElementIds",
	"selectedGroupIds",
	"selectedLinearElement",
	"editingElement",
	"editingGroupId",
	"editingLinearElement",
	"editingFrame",
	"draggingElement",
	"resizingElement",
	"newElement",
	"hoveredElementIds",
	"activeEmbeddable",
	"openDialog",
	"openMenu",
	"openPopup",
	"openSidebar",
	"toast",
	"errorMessage",
	"cursorButton",
	"contextMenu",
	"collaborators",
	"followedBy",
	"userToFollow",
	"pendingImageElementId",
	"suggestedBindings",
	"startBoundElement",
	"isBindingEnabled",
	"multiElement",
	"selectionElement",
}

// SanitizeAppState returns a copy of the view state with transient keys
// removed and all values normalized to plain JSON containers.
func SanitizeAppState(appState map[string]any) map[string]any {
	if appState == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(appState))
	for k, v := range appState {
		out[k] = v
	}
	for _, k := range transientAppStateKeys {
		delete(out, k)
	}
	normalized, err := NormalizeJSON(out)
	if err != nil {
		// Keys that cannot round-trip are dropped one by one.
		for k, v := range out {
			if _, err := json.Marshal(v); err != nil {
				delete(out, k)
			} else {
				out[k] = v
			}
		}
		normalized, err = NormalizeJSON(out)
		if err != nil {
			return map[string]any{}
		}
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

// NormalizeJSON recursively converts arbitrary container values (structs,
// typed maps, typed slices) into plain JSON maps, slices, and scalars via
// a marshal round-trip.
func NormalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
