package audio

import (
	"sync"
	"time"
)

// ScriptedSource is a Source that replays pre-recorded frames. It backs tests
// and the demo driver; real capture arrives from the host UI the same way,
// through the onFrames callback.
type ScriptedSource struct {
	mu       sync.Mutex
	rate     int
	frames   [][]float32
	interval time.Duration
	stopCh   chan struct{}
	running  bool
	fail     bool
}

// NewScriptedSource creates a source that delivers the given frames in order.
// A zero interval delivers everything synchronously inside Start.
func NewScriptedSource(rate int, frames [][]float32, interval time.Duration) *ScriptedSource {
	return &ScriptedSource{
		rate:     rate,
		frames:   frames,
		interval: interval,
	}
}

// NewUnavailableSource returns a source whose Start always fails with
// ErrDeviceUnavailable, for exercising the denied-permission path.
func NewUnavailableSource() *ScriptedSource {
	return &ScriptedSource{fail: true}
}

// PushSource is a Source fed by an external caller, for hosts that stream
// captured samples over a transport (the control endpoint's audio ingest
// route) instead of opening a device in-process.
type PushSource struct {
	mu       sync.Mutex
	rate     int
	onFrames func(samples []float32)
}

// NewPushSource creates a push-fed source reporting the given native rate.
func NewPushSource(rate int) *PushSource {
	return &PushSource{rate: rate}
}

// Start begins accepting pushed frames
func (s *PushSource) Start(onFrames func(samples []float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onFrames != nil {
		return ErrAlreadyStarted
	}
	s.onFrames = onFrames
	return nil
}

// Stop detaches the consumer; frames pushed afterwards are dropped.
func (s *PushSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrames = nil
	return nil
}

// SampleRate reports the configured native rate
func (s *PushSource) SampleRate() int {
	return s.rate
}

// Push delivers captured samples to the consumer. Frames arriving while the
// source is stopped are dropped silently.
func (s *PushSource) Push(samples []float32) {
	s.mu.Lock()
	onFrames := s.onFrames
	s.mu.Unlock()

	if onFrames != nil {
		onFrames(samples)
	}
}

// Start begins frame delivery
func (s *ScriptedSource) Start(onFrames func(samples []float32)) error {
	s.mu.Lock()
	if s.fail {
		s.mu.Unlock()
		return ErrDeviceUnavailable
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	s.stopCh = make(chan struct{})
	frames := s.frames
	interval := s.interval
	stopCh := s.stopCh
	s.mu.Unlock()

	if interval == 0 {
		for _, f := range frames {
			onFrames(f)
		}
		return nil
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for _, f := range frames {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				onFrames(f)
			}
		}
	}()
	return nil
}

// Stop halts frame delivery
func (s *ScriptedSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	return nil
}

// SampleRate reports the scripted native rate
func (s *ScriptedSource) SampleRate() int {
	return s.rate
}
