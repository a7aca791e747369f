package domain

import (
	"errors"
	"unicode/utf8"
)

// Intake and commit failures surfaced synchronously at the API boundary.
var (
	ErrEmptyPrompt     = errors.New("prompt text is empty")
	ErrSessionNotFound = errors.New("session not found")
	ErrRunNotFound     = errors.New("run not found")
	ErrForbidden       = errors.New("forbidden")
)

// MaxErrorLen caps human-readable failure messages written to the run
// and assistant message rows.
const MaxErrorLen = 400

// TruncateError shortens a failure message to at most MaxErrorLen
// bytes, cutting on a rune boundary so the result stays valid UTF-8.
func TruncateError(s string) string {
	if len(s) <= MaxErrorLen {
		return s
	}
	cut := MaxErrorLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
