// Package session drives one tutoring session's affect pipeline: audio
// chunking into the voice classifier, a face ticker into the face classifier,
// fusion of both modalities, and the reward/bandit step on every answer.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/tutorsense/internal/audio"
	"github.com/normanking/tutorsense/internal/bandit"
	"github.com/normanking/tutorsense/internal/bus"
	"github.com/normanking/tutorsense/internal/classifier"
	"github.com/normanking/tutorsense/internal/config"
	"github.com/normanking/tutorsense/internal/emotion"
	"github.com/normanking/tutorsense/internal/fusion"
	"github.com/normanking/tutorsense/internal/reward"
)

// armDeltas maps each policy arm to its difficulty adjustment.
var armDeltas = map[string]int{
	ArmEasier: -1,
	ArmHold:   0,
	ArmHarder: 1,
}

// Driver owns one session's pipeline instance. Answers enter via Step; the
// capture side runs on its own goroutines between answers.
type Driver struct {
	config   *config.Config
	eventBus *bus.EventBus
	logger   zerolog.Logger

	id      string
	chunker *audio.Chunker
	fusion  *fusion.Engine
	rewards *reward.Engine
	policy  *bandit.Policy
	faces   FaceClassifier
	voices  VoiceClassifier
	frames  FrameProvider

	mu         sync.Mutex
	running    bool
	captureOn  bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	faceFailed bool

	steps            uint64
	difficulty       int
	recentCorrect    []float64
	recentPositive   []float64
	consecutiveWrong int
	lastMastery      float64
	haveMastery      bool
	pendingFeatures  []float64
	pendingArm       string
}

// NewDriver builds a session driver and its pipeline components from config.
func NewDriver(cfg *config.Config, faces FaceClassifier, voices VoiceClassifier, eventBus *bus.EventBus, logger zerolog.Logger) (*Driver, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	smCfg := emotion.SmootherConfig{Alpha: cfg.Smoothing.Alpha, Drift: cfg.Smoothing.Drift}
	faceSmoother := emotion.NewSmoother(smCfg, 0)
	voiceSmoother := emotion.NewSmoother(smCfg, 0)

	fusionEngine := fusion.NewEngine(
		&fusion.Config{Lambda: cfg.Fusion.Lambda, MinVAD: cfg.Fusion.MinVAD},
		faceSmoother, voiceSmoother, eventBus, logger,
	)

	rewards := reward.NewEngine()
	switch cfg.Reward.Preset {
	case "", reward.PresetBaseline:
		// Default weights already active.
	case "custom":
		if err := rewards.SetCustom(reward.Weights{
			Alpha: cfg.Reward.Alpha,
			Beta:  cfg.Reward.Beta,
			Gamma: cfg.Reward.Gamma,
		}); err != nil {
			return nil, err
		}
	default:
		if err := rewards.SetPreset(cfg.Reward.Preset); err != nil {
			return nil, err
		}
	}

	policy, err := bandit.NewPolicy(
		&bandit.Config{Exploration: cfg.Bandit.Exploration, Ridge: cfg.Bandit.Ridge},
		FeatureDim,
		[]string{ArmEasier, ArmHold, ArmHarder},
		eventBus, logger,
	)
	if err != nil {
		return nil, err
	}

	chunker := audio.NewChunker(&audio.ChunkerConfig{
		NativeRate:               cfg.Audio.NativeRate,
		TargetRate:               cfg.Audio.TargetRate,
		ChunkSeconds:             cfg.Audio.ChunkSeconds,
		DuplicateThreshold:       cfg.Audio.DuplicateThreshold,
		QuietRMS:                 cfg.Audio.QuietRMS,
		MaxConsecutiveDuplicates: cfg.Audio.MaxConsecutiveDuplicates,
	}, eventBus, logger)

	d := &Driver{
		config:     cfg,
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "session").Logger(),
		id:         uuid.NewString(),
		chunker:    chunker,
		fusion:     fusionEngine,
		rewards:    rewards,
		policy:     policy,
		faces:      faces,
		voices:     voices,
		difficulty: 3,
	}
	chunker.OnChunk(d.handleChunk)
	return d, nil
}

// ID returns the session identifier.
func (d *Driver) ID() string {
	return d.id
}

// Start begins capture: audio chunking from mic (nil for a face-only session)
// and the face ticker from frames (nil for a voice-only session). Step works
// either way; capture only feeds the affect side of the context.
func (d *Driver) Start(mic audio.Source, frames FrameProvider) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.ctx = ctx
	d.cancel = cancel
	d.running = true
	d.frames = frames
	d.mu.Unlock()

	if mic != nil {
		if err := d.chunker.Start(mic); err != nil {
			d.mu.Lock()
			d.running = false
			d.mu.Unlock()
			cancel()
			return err
		}
		d.mu.Lock()
		d.captureOn = true
		d.mu.Unlock()
	}

	if frames != nil && d.faces != nil {
		d.wg.Add(1)
		go d.faceLoop(ctx)
	}

	d.logger.Info().Str("session_id", d.id).Msg("Session started")
	if d.eventBus != nil {
		d.eventBus.Publish(bus.Event{
			Type: bus.EventTypeSessionStarted,
			Data: map[string]any{"session_id": d.id},
		})
	}
	return nil
}

// Stop halts capture and waits for in-flight classifier calls to settle.
// Learned policy state survives across Start/Stop cycles.
func (d *Driver) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}
	d.running = false
	captureOn := d.captureOn
	d.captureOn = false
	cancel := d.cancel
	d.mu.Unlock()

	cancel()
	d.wg.Wait()

	var err error
	if captureOn {
		err = d.chunker.Stop()
	}

	d.logger.Info().Str("session_id", d.id).Msg("Session stopped")
	if d.eventBus != nil {
		d.eventBus.Publish(bus.Event{
			Type: bus.EventTypeSessionStopped,
			Data: map[string]any{"session_id": d.id},
		})
	}
	return err
}

// handleChunk receives each dispatched audio chunk and hands it to the voice
// classifier off the capture goroutine.
func (d *Driver) handleChunk(wav []byte, meta audio.Chunk) {
	d.mu.Lock()
	if !d.running || d.voices == nil {
		d.mu.Unlock()
		return
	}
	ctx := d.ctx
	// Add under mu so a chunk racing Stop cannot touch the WaitGroup after
	// Stop has begun waiting.
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.classifyVoice(ctx, wav, meta.Seq)
	}()
}

// classifyVoice runs one voice inference cycle against the SER endpoint.
func (d *Driver) classifyVoice(ctx context.Context, wav []byte, seq uint64) {
	res, err := d.voices.ClassifyVoice(ctx, wav)
	switch {
	case errors.Is(err, classifier.ErrBusy):
		// A previous call is still in flight; this cycle is skipped, not queued.
		d.logger.Debug().Uint64("seq", seq).Msg("Voice classifier busy, cycle skipped")
	case err != nil:
		d.logger.Debug().Err(err).Uint64("seq", seq).Msg("Voice cycle failed")
		d.fusion.VoiceFailure()
	default:
		d.fusion.ObserveVoice(fusion.VoiceReading{
			Vector: emotion.Normalize(emotion.Vector{
				Positive:   res.Pos,
				Neutral:    res.Neu,
				Frustrated: res.Fru,
			}),
			VAD: res.VAD,
		})
	}
}

// faceLoop ticks at the configured cadence and launches one face cycle per
// tick. Overlap is resolved by the classifier's busy flag, not by queueing.
func (d *Driver) faceLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Session.FaceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.classifyFace(ctx)
			}()
		}
	}
}

// classifyFace runs one face inference cycle against the FER endpoint.
func (d *Driver) classifyFace(ctx context.Context) {
	frame, err := d.frames.Frame()
	if err != nil {
		d.faceFailure(err)
		return
	}

	res, err := d.faces.ClassifyFace(ctx, frame)
	switch {
	case errors.Is(err, classifier.ErrBusy):
		return
	case err != nil:
		d.faceFailure(err)
	default:
		d.faceRecovered()
		d.fusion.ObserveFace(emotion.Normalize(emotion.Vector{
			Positive:   res.Pos,
			Neutral:    res.Neu,
			Frustrated: res.Fru,
		}))
	}
}

// faceFailure drifts the face smoother and surfaces the loss once per episode.
func (d *Driver) faceFailure(err error) {
	d.mu.Lock()
	first := !d.faceFailed
	d.faceFailed = true
	d.mu.Unlock()

	if first {
		d.logger.Warn().Err(err).Msg("Face signal lost, drifting")
		if d.eventBus != nil {
			d.eventBus.Publish(bus.Event{Type: bus.EventTypeFaceLost})
		}
	}
	d.fusion.FaceFailure()
}

// faceRecovered ends a face failure episode, surfacing the recovery once.
func (d *Driver) faceRecovered() {
	d.mu.Lock()
	recovered := d.faceFailed
	d.faceFailed = false
	d.mu.Unlock()

	if recovered {
		d.logger.Info().Msg("Face signal recovered")
		if d.eventBus != nil {
			d.eventBus.Publish(bus.Event{Type: bus.EventTypeFaceRecovered})
		}
	}
}

// Step records one answered question: it credits the previous difficulty
// decision with the reward observed now, then picks the next adjustment from
// the fresh context. The first step has no previous decision to credit.
func (d *Driver) Step(correct bool, mastery float64) (StepResult, error) {
	mastery = clamp01(mastery)
	fused := d.fusion.Fused()

	d.mu.Lock()
	defer d.mu.Unlock()

	prevMastery := mastery
	if d.haveMastery {
		prevMastery = d.lastMastery
	}
	rew := d.rewards.Compute(correct, fused, prevMastery, mastery)

	if d.pendingArm != "" {
		if err := d.policy.Update(d.pendingFeatures, rew, d.pendingArm); err != nil {
			return StepResult{}, err
		}
		if d.eventBus != nil {
			d.eventBus.Publish(bus.Event{
				Type: bus.EventTypeRewardComputed,
				Data: map[string]any{
					"session_id": d.id,
					"arm":        d.pendingArm,
					"reward":     rew,
				},
			})
		}
	}

	correctVal := 0.0
	if correct {
		correctVal = 1.0
		d.consecutiveWrong = 0
	} else {
		d.consecutiveWrong++
	}
	d.recentCorrect = pushWindow(d.recentCorrect, correctVal)
	d.recentPositive = pushWindow(d.recentPositive, fused.Positive)

	wrong := float64(d.consecutiveWrong)
	if wrong > 3 {
		wrong = 3
	}
	features := []float64{
		mastery,
		mean(d.recentPositive),
		clamp01(fused.Frustrated),
		correctVal,
		mean(d.recentCorrect),
		wrong / 3,
	}

	arm, _, err := d.policy.Select(features)
	if err != nil {
		return StepResult{}, err
	}
	d.pendingFeatures = features
	d.pendingArm = arm

	delta := armDeltas[arm]
	d.difficulty += delta
	if d.difficulty < MinDifficulty {
		d.difficulty = MinDifficulty
	}
	if d.difficulty > MaxDifficulty {
		d.difficulty = MaxDifficulty
	}

	d.lastMastery = mastery
	d.haveMastery = true
	d.steps++

	d.logger.Info().
		Uint64("step", d.steps).
		Bool("correct", correct).
		Float64("reward", rew).
		Str("arm", arm).
		Int("difficulty", d.difficulty).
		Msg("Answer step")

	return StepResult{
		SessionID:  d.id,
		Step:       d.steps,
		Reward:     rew,
		Arm:        arm,
		Delta:      delta,
		Difficulty: d.difficulty,
		Fused:      fused,
	}, nil
}

// ApplyConfig picks up live-adjustable settings from a reloaded config.
func (d *Driver) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	d.fusion.SetLambda(cfg.Fusion.Lambda)
	d.fusion.SetMinVAD(cfg.Fusion.MinVAD)

	if cfg.Reward.Preset == "custom" {
		_ = d.rewards.SetCustom(reward.Weights{
			Alpha: cfg.Reward.Alpha,
			Beta:  cfg.Reward.Beta,
			Gamma: cfg.Reward.Gamma,
		})
	} else if cfg.Reward.Preset != "" {
		_ = d.rewards.SetPreset(cfg.Reward.Preset)
	}

	d.logger.Info().Msg("Live config applied")
	if d.eventBus != nil {
		d.eventBus.Publish(bus.Event{Type: bus.EventTypeConfigUpdated})
	}
}

// Fused returns the latest fused emotion vector.
func (d *Driver) Fused() emotion.Vector {
	return d.fusion.Fused()
}

// Snapshot returns the full session state for inspectors.
func (d *Driver) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	return State{
		SessionID:        d.id,
		Running:          d.running,
		Steps:            d.steps,
		Difficulty:       d.difficulty,
		ConsecutiveWrong: d.consecutiveWrong,
		RecentAccuracy:   mean(d.recentCorrect),
		RecentPositive:   mean(d.recentPositive),
		Fusion:           d.fusion.Snapshot(),
		Arms:             d.policy.Snapshot(),
	}
}

// pushWindow appends v and keeps only the newest recentWindow entries.
func pushWindow(w []float64, v float64) []float64 {
	w = append(w, v)
	if len(w) > recentWindow {
		w = w[len(w)-recentWindow:]
	}
	return w
}

func mean(w []float64) float64 {
	if len(w) == 0 {
		return 0
	}
	var s float64
	for _, v := range w {
		s += v
	}
	return s / float64(len(w))
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
