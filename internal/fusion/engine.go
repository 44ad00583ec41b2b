// Package fusion combines the smoothed face and voice emotion vectors into
// one fused vector per decision cycle, gated by voice activity.
package fusion

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorsense/internal/bus"
	"github.com/normanking/tutorsense/internal/emotion"
)

// Config holds fusion configuration
type Config struct {
	Lambda float64 `json:"lambda"`  // face share in the blend, clamped [0,1]
	MinVAD float64 `json:"min_vad"` // gate below which voice is ignored
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Lambda: 0.6,
		MinVAD: 0.2,
	}
}

// VoiceReading is one inference cycle's voice result: an emotion vector plus
// the voice-activity score. Its lifetime is the cycle that produced it.
type VoiceReading struct {
	Vector emotion.Vector `json:"vector"`
	VAD    float64        `json:"vad"`
}

// State is a read-only snapshot of the engine for external collaborators.
type State struct {
	Face         emotion.Vector `json:"face"`
	Voice        emotion.Vector `json:"voice"`
	Fused        emotion.Vector `json:"fused"`
	Lambda       float64        `json:"lambda"`
	MinVAD       float64        `json:"min_vad"`
	LastVAD      float64        `json:"last_vad"`
	VoiceEnabled bool           `json:"voice_enabled"`
	VoiceInUse   bool           `json:"voice_in_use"` // voice contributed to the last fuse
	VoiceFailed  bool           `json:"voice_failed"` // inside a failure episode
}

// Engine owns the two modality smoothers and the fusion state. Only the
// engine mutates that state; collaborators read snapshots.
type Engine struct {
	mu       sync.RWMutex
	config   *Config
	face     *emotion.Smoother
	voice    *emotion.Smoother
	eventBus *bus.EventBus
	logger   zerolog.Logger

	voiceEnabled bool
	voiceFailed  bool
	lastVAD      float64
	voiceInUse   bool
	lastFused    emotion.Vector
}

// NewEngine creates a fusion engine over the given per-modality smoothers
func NewEngine(config *Config, face, voice *emotion.Smoother, eventBus *bus.EventBus, logger zerolog.Logger) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	config.Lambda = clamp01(config.Lambda)
	config.MinVAD = clamp01(config.MinVAD)

	return &Engine{
		config:       config,
		face:         face,
		voice:        voice,
		eventBus:     eventBus,
		logger:       logger.With().Str("component", "fusion").Logger(),
		voiceEnabled: true,
		lastFused:    emotion.Uniform(),
	}
}

// SetVoiceEnabled toggles the voice channel
func (e *Engine) SetVoiceEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voiceEnabled = enabled
}

// SetLambda updates the fusion weight (live-adjustable)
func (e *Engine) SetLambda(lambda float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.Lambda = clamp01(lambda)
}

// SetMinVAD updates the VAD gating threshold (live-adjustable)
func (e *Engine) SetMinVAD(minVAD float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.MinVAD = clamp01(minVAD)
}

// ObserveFace advances the face smoother with a new observation and returns
// the updated fused vector.
func (e *Engine) ObserveFace(obs emotion.Vector) emotion.Vector {
	e.face.Advance(obs)
	return e.fuse()
}

// FaceFailure applies a drift step to the face smoother for a failed cycle
// and returns the updated fused vector.
func (e *Engine) FaceFailure() emotion.Vector {
	e.face.Drift()
	return e.fuse()
}

// ObserveVoice feeds one cycle's voice reading. Below the VAD gate the voice
// smoother is left untouched so silence cannot bias the EMA toward neutral.
// A successful reading ends any ongoing voice failure episode.
func (e *Engine) ObserveVoice(reading VoiceReading) emotion.Vector {
	e.mu.Lock()
	e.lastVAD = reading.VAD
	recovered := e.voiceFailed
	e.voiceFailed = false
	enabled := e.voiceEnabled
	gate := e.config.MinVAD
	e.mu.Unlock()

	if recovered {
		e.logger.Info().Msg("Voice classifier recovered")
		if e.eventBus != nil {
			e.eventBus.Publish(bus.Event{Type: bus.EventTypeVoiceRecovered})
		}
	}

	if !enabled || reading.VAD < gate {
		if e.eventBus != nil {
			e.eventBus.Publish(bus.Event{
				Type: bus.EventTypeVoiceGated,
				Data: map[string]any{"vad": reading.VAD, "min_vad": gate},
			})
		}
		return e.fuse()
	}

	e.voice.Advance(reading.Vector)
	return e.fuse()
}

// VoiceFailure records a failed voice cycle. The failure is surfaced once per
// episode, not on every cycle until recovery; fusion falls back to face-only.
func (e *Engine) VoiceFailure() emotion.Vector {
	e.mu.Lock()
	firstOfEpisode := !e.voiceFailed
	e.voiceFailed = true
	e.mu.Unlock()

	if firstOfEpisode {
		e.logger.Warn().Msg("Voice classifier lost, fusing face-only")
		if e.eventBus != nil {
			e.eventBus.Publish(bus.Event{Type: bus.EventTypeVoiceLost})
		}
	}
	return e.fuse()
}

// fuse recomputes the fused vector from the latest smoothed modalities.
func (e *Engine) fuse() emotion.Vector {
	face := e.face.Current()

	e.mu.Lock()
	defer e.mu.Unlock()

	useVoice := e.voiceEnabled &&
		!e.voiceFailed &&
		e.voice.Primed() &&
		e.lastVAD >= e.config.MinVAD

	e.voiceInUse = useVoice
	if !useVoice {
		e.lastFused = face
	} else {
		voice := e.voice.Current()
		l := e.config.Lambda
		e.lastFused = emotion.Normalize(emotion.Vector{
			Positive:   l*face.Positive + (1-l)*voice.Positive,
			Neutral:    l*face.Neutral + (1-l)*voice.Neutral,
			Frustrated: l*face.Frustrated + (1-l)*voice.Frustrated,
		})
	}

	if e.eventBus != nil {
		e.eventBus.Publish(bus.Event{
			Type: bus.EventTypeFusedVector,
			Data: map[string]any{
				"positive":   e.lastFused.Positive,
				"neutral":    e.lastFused.Neutral,
				"frustrated": e.lastFused.Frustrated,
				"voice":      useVoice,
			},
		})
	}
	return e.lastFused
}

// Fused returns the most recent fused vector.
func (e *Engine) Fused() emotion.Vector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastFused
}

// Snapshot returns a copy of the full fusion state for inspectors.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return State{
		Face:         e.face.Current(),
		Voice:        e.voice.Current(),
		Fused:        e.lastFused,
		Lambda:       e.config.Lambda,
		MinVAD:       e.config.MinVAD,
		LastVAD:      e.lastVAD,
		VoiceEnabled: e.voiceEnabled,
		VoiceInUse:   e.voiceInUse,
		VoiceFailed:  e.voiceFailed,
	}
}

// Reset clears both smoothers and the fusion state.
func (e *Engine) Reset() {
	e.face.Reset()
	e.voice.Reset()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.voiceFailed = false
	e.lastVAD = 0
	e.voiceInUse = false
	e.lastFused = emotion.Uniform()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
