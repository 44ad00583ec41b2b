package audio

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/tutorsense/internal/bus"
)

// Chunker accumulates native-rate sample frames into fixed-duration windows,
// resamples them to the canonical rate, deduplicates silent or unchanged
// windows, and dispatches the survivors as WAV buffers.
//
// Window boundaries never drop samples: the remainder after a flush seeds the
// next window. The duplicate decision for window n always sees the signature
// left by window n-1 (a single serial cursor under mu).
type Chunker struct {
	config   *ChunkerConfig
	eventBus *bus.EventBus
	logger   zerolog.Logger

	mu              sync.Mutex
	source          Source
	started         bool
	queue           []float32
	windowSize      int
	seq             uint64
	lastSig         *Signature
	consecutiveDups int

	// Callbacks
	onChunk    func(wav []byte, meta Chunk) // dispatched chunks only
	onMetadata func(meta Chunk)             // every window, dispatched or skipped
	callbackMu sync.RWMutex
}

// NewChunker creates a chunker for the given source
func NewChunker(config *ChunkerConfig, eventBus *bus.EventBus, logger zerolog.Logger) *Chunker {
	if config == nil {
		config = DefaultChunkerConfig()
	}
	if config.ChunkSeconds < 0.25 {
		config.ChunkSeconds = 0.25
	}
	if config.MaxConsecutiveDuplicates < 1 {
		config.MaxConsecutiveDuplicates = DefaultChunkerConfig().MaxConsecutiveDuplicates
	}

	return &Chunker{
		config:     config,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "chunker").Logger(),
		windowSize: int(math.Ceil(float64(config.NativeRate) * config.ChunkSeconds)),
	}
}

// OnChunk registers the dispatch handler for encoded chunks
func (c *Chunker) OnChunk(callback func(wav []byte, meta Chunk)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onChunk = callback
}

// OnMetadata registers the observability callback invoked for every window
func (c *Chunker) OnMetadata(callback func(meta Chunk)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onMetadata = callback
}

// Start acquires the audio source and begins accumulating frames.
// The source's native rate overrides the configured one.
func (c *Chunker) Start(source Source) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if rate := source.SampleRate(); rate > 0 {
		c.config.NativeRate = rate
		c.windowSize = int(math.Ceil(float64(rate) * c.config.ChunkSeconds))
	}
	c.source = source
	c.started = true
	c.mu.Unlock()

	if err := source.Start(c.pushFrames); err != nil {
		// Release everything acquired so far; Start must leave no state behind
		// on any failure path.
		c.mu.Lock()
		c.resetLocked()
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("Failed to acquire audio source")
		return err
	}

	c.logger.Info().
		Int("native_rate", c.config.NativeRate).
		Int("target_rate", c.config.TargetRate).
		Float64("chunk_seconds", c.config.ChunkSeconds).
		Msg("Audio chunker started")

	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeCaptureStarted})
	}
	return nil
}

// Stop releases the source and resets all accumulation and duplicate-tracking
// state so a subsequent Start begins clean.
func (c *Chunker) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	source := c.source
	c.resetLocked()
	c.mu.Unlock()

	var err error
	if source != nil {
		err = source.Stop()
	}

	c.logger.Info().Msg("Audio chunker stopped")
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: bus.EventTypeCaptureStopped})
	}
	return err
}

// resetLocked zeroes all session state. Caller must hold mu.
func (c *Chunker) resetLocked() {
	c.started = false
	c.source = nil
	c.queue = nil
	c.seq = 0
	c.lastSig = nil
	c.consecutiveDups = 0
}

// pushFrames appends captured samples and flushes completed windows in order.
func (c *Chunker) pushFrames(samples []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}

	c.queue = append(c.queue, samples...)
	for len(c.queue) >= c.windowSize {
		window := make([]float32, c.windowSize)
		copy(window, c.queue[:c.windowSize])
		c.queue = append(c.queue[:0], c.queue[c.windowSize:]...)
		c.processWindowLocked(window)
	}
}

// processWindowLocked runs one window through resample, signature, and the
// dedup rules. Caller must hold mu.
func (c *Chunker) processWindowLocked(window []float32) {
	resampled := Resample(window, c.config.NativeRate, c.config.TargetRate)
	sig := ComputeSignature(resampled)

	duplicate := false
	sent := true

	// Silence rule: an exactly-zero window is never dispatched on its own.
	if sig.RMS == 0 && sig.Peak == 0 && sig.Mean == 0 {
		duplicate = true
		sent = false
	} else if c.lastSig != nil {
		prev := *c.lastSig
		prevQuiet := prev.RMS < c.config.QuietRMS
		currQuiet := sig.RMS < c.config.QuietRMS

		threshold := c.config.DuplicateThreshold
		if prevQuiet && currQuiet {
			threshold *= 10
		}

		within := math.Abs(sig.RMS-prev.RMS) <= threshold &&
			math.Abs(sig.Peak-prev.Peak) <= threshold &&
			math.Abs(sig.Mean-prev.Mean) <= threshold

		// Quiet pairs are never marked duplicate so that near-silence still
		// reaches the classifier periodically.
		if within && !(prevQuiet && currQuiet) {
			duplicate = true
			sent = false
		}
	}

	// Anti-starvation: after enough consecutive skips the next window goes
	// out regardless of its duplicate status.
	forced := false
	if !sent && c.consecutiveDups >= c.config.MaxConsecutiveDuplicates {
		sent = true
		forced = true
	}

	c.seq++
	meta := Chunk{
		Seq:          c.seq,
		Samples:      len(resampled),
		Duration:     time.Duration(float64(len(resampled)) / float64(c.config.TargetRate) * float64(time.Second)),
		EncodedBytes: EncodedSize(len(resampled)),
		Signature:    sig,
		Duplicate:    duplicate,
		Sent:         sent,
		Timestamp:    time.Now(),
	}

	// Last-signature cursor advances for every window, skipped or not.
	sigCopy := sig
	c.lastSig = &sigCopy

	if sent {
		c.consecutiveDups = 0
	} else {
		c.consecutiveDups++
	}

	c.callbackMu.RLock()
	onChunk := c.onChunk
	onMetadata := c.onMetadata
	c.callbackMu.RUnlock()

	if sent && onChunk != nil {
		onChunk(EncodeWAV(resampled, c.config.TargetRate), meta)
	}
	if onMetadata != nil {
		onMetadata(meta)
	}

	if c.eventBus != nil {
		evType := bus.EventTypeChunkDispatched
		if !sent {
			evType = bus.EventTypeChunkSkipped
		}
		c.eventBus.Publish(bus.Event{
			Type: evType,
			Data: map[string]any{
				"seq":       meta.Seq,
				"duplicate": meta.Duplicate,
				"forced":    forced,
				"rms":       sig.RMS,
			},
		})
	}

	c.logger.Debug().
		Uint64("seq", meta.Seq).
		Bool("sent", sent).
		Bool("duplicate", duplicate).
		Bool("forced", forced).
		Float64("rms", sig.RMS).
		Msg("Window processed")
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation, clamped at the buffer end. Equal rates return the input
// unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(dstRate) / float64(srcRate)
	outLen := int(math.Round(float64(len(samples)) * ratio))
	out := make([]float32, outLen)

	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := srcPos - float64(i0)
		out[i] = float32((1-frac)*float64(samples[i0]) + frac*float64(samples[i0+1]))
	}
	return out
}

// ComputeSignature returns the RMS, peak absolute value, and arithmetic mean
// of a sample window.
func ComputeSignature(samples []float32) Signature {
	if len(samples) == 0 {
		return Signature{}
	}

	var sumSq, sum, peak float64
	for _, s := range samples {
		v := float64(s)
		sumSq += v * v
		sum += v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	n := float64(len(samples))
	return Signature{
		RMS:  math.Sqrt(sumSq / n),
		Peak: peak,
		Mean: sum / n,
	}
}
