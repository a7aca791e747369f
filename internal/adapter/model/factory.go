package model

import (
	"log"
	"os"
	"time"
)

const (
	// EnvMode is the environment variable name for mode selection.
	EnvMode = "SKETCHD_MODE"
	// ModeMock indicates the in-process mock model should be used.
	ModeMock = "MOCK"
)

// NewClient creates a model client based on the SKETCHD_MODE environment
// variable. If SKETCHD_MODE=MOCK, returns a MockClient; otherwise
// returns an SSE client for the configured gateway.
func NewClient(baseURL, apiKey string, timeout time.Duration) Client {
	if os.Getenv(EnvMode) == ModeMock {
		log.Println("SKETCHD_MODE=MOCK detected, using mock model client")
		return NewMockClient()
	}
	return NewSSEClient(baseURL, apiKey, timeout)
}
