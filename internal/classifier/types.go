// Package classifier provides HTTP clients for the remote face and voice
// emotion classifiers.
package classifier

import (
	"errors"
	"time"
)

// Common errors
var (
	// ErrUnreachable covers network failures and timeouts to either service.
	ErrUnreachable = errors.New("classifier unreachable")
	// ErrMalformedResponse covers out-of-range or non-finite fields. Callers
	// treat it like ErrUnreachable and keep the previous smoothed value.
	ErrMalformedResponse = errors.New("classifier returned malformed response")
	// ErrBusy means the previous call for this modality is still in flight;
	// the current cycle must be skipped, not queued.
	ErrBusy = errors.New("classifier call already in flight")
)

// FaceResult is the /fer response.
type FaceResult struct {
	Pos float64 `json:"pos"`
	Neu float64 `json:"neu"`
	Fru float64 `json:"fru"`
}

// VoiceResult is the /ser response: an emotion distribution plus a
// voice-activity score.
type VoiceResult struct {
	Pos float64 `json:"pos"`
	Neu float64 `json:"neu"`
	Fru float64 `json:"fru"`
	VAD float64 `json:"vad"`
}

// Config holds classifier client configuration
type Config struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:8000",
		Timeout: 5 * time.Second,
	}
}
