// Package audio turns a continuous capture stream into fixed-duration,
// deduplicated mono waveform chunks ready for the voice classifier.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrAlreadyStarted    = errors.New("chunker already started")
	ErrNotStarted        = errors.New("chunker not started")
)

// Signature summarizes a resampled window's content for duplicate detection.
type Signature struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
	Mean float64 `json:"mean"`
}

// Chunk is the immutable metadata record for one accumulation window.
// It is created once per completed window and never mutated afterwards.
type Chunk struct {
	Seq          uint64        `json:"seq"`
	Samples      int           `json:"samples"`       // resampled sample count
	Duration     time.Duration `json:"duration"`      // at the target rate
	EncodedBytes int           `json:"encoded_bytes"` // approximate WAV size
	Signature    Signature     `json:"signature"`
	Duplicate    bool          `json:"duplicate"`
	Sent         bool          `json:"sent"`
	Timestamp    time.Time     `json:"timestamp"`
}

// ChunkerConfig holds chunker configuration
type ChunkerConfig struct {
	NativeRate               int     `json:"native_rate"`  // device capture rate
	TargetRate               int     `json:"target_rate"`  // canonical classifier rate
	ChunkSeconds             float64 `json:"chunk_seconds"`
	DuplicateThreshold       float64 `json:"duplicate_threshold"`
	QuietRMS                 float64 `json:"quiet_rms"`
	MaxConsecutiveDuplicates int     `json:"max_consecutive_duplicates"`
}

// DefaultChunkerConfig returns sensible defaults
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		NativeRate:               48000,
		TargetRate:               16000,
		ChunkSeconds:             2.5,
		DuplicateThreshold:       1e-4,
		QuietRMS:                 0.01,
		MaxConsecutiveDuplicates: 5,
	}
}

// Source abstracts the audio input device. Implementations deliver sample
// frames at the native rate until Stop is called.
type Source interface {
	// Start acquires the device and begins delivering frames to onFrames.
	// It must return ErrDeviceUnavailable when no device can be acquired.
	Start(onFrames func(samples []float32)) error
	// Stop releases the device. Safe to call more than once.
	Stop() error
	// SampleRate reports the device's native rate in Hz.
	SampleRate() int
}
