package session

import (
	"errors"
	"sync"
	"time"
)

// ErrNoFrame is returned when a provider has no usable face crop this cycle.
var ErrNoFrame = errors.New("no face frame available")

// ScriptedFrames cycles through a fixed set of crops. Used in tests and in
// the selfcheck path where no camera is attached.
type ScriptedFrames struct {
	mu     sync.Mutex
	frames [][]byte
	idx    int
}

// NewScriptedFrames creates a provider that serves the given crops in order,
// wrapping around at the end.
func NewScriptedFrames(frames ...[]byte) *ScriptedFrames {
	return &ScriptedFrames{frames: frames}
}

// Frame returns the next scripted crop.
func (s *ScriptedFrames) Frame() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		return nil, ErrNoFrame
	}
	f := s.frames[s.idx%len(s.frames)]
	s.idx++
	return f, nil
}

// UnavailableFrames models a camera that never yields a frame.
type UnavailableFrames struct{}

// Frame always fails.
func (UnavailableFrames) Frame() ([]byte, error) {
	return nil, ErrNoFrame
}

// LatestFrame is a FrameProvider fed by an external caller: the host posts
// crops as it captures them and every inference cycle reads the newest one.
// A frame older than ttl counts as no frame, so a stalled camera surfaces as
// a face-loss episode instead of a frozen expression.
type LatestFrame struct {
	mu    sync.Mutex
	frame []byte
	at    time.Time
	ttl   time.Duration
}

// NewLatestFrame creates a push-fed provider. A non-positive ttl keeps the
// newest frame valid indefinitely.
func NewLatestFrame(ttl time.Duration) *LatestFrame {
	return &LatestFrame{ttl: ttl}
}

// Set stores a new crop as the current frame.
func (l *LatestFrame) Set(frame []byte) {
	buf := make([]byte, len(frame))
	copy(buf, frame)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = buf
	l.at = time.Now()
}

// Frame returns the newest crop, or ErrNoFrame when none has arrived yet or
// the newest one has expired.
func (l *LatestFrame) Frame() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frame == nil {
		return nil, ErrNoFrame
	}
	if l.ttl > 0 && time.Since(l.at) > l.ttl {
		return nil, ErrNoFrame
	}
	return l.frame, nil
}
