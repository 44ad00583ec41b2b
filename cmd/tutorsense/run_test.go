package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/tutorsense/internal/audio"
	"github.com/normanking/tutorsense/internal/classifier"
	"github.com/normanking/tutorsense/internal/config"
	"github.com/normanking/tutorsense/internal/emotion"
	"github.com/normanking/tutorsense/internal/session"
)

type stubFace struct {
	res   classifier.FaceResult
	calls atomic.Int32
}

func (s *stubFace) ClassifyFace(_ context.Context, _ []byte) (*classifier.FaceResult, error) {
	s.calls.Add(1)
	res := s.res
	return &res, nil
}

type stubVoice struct {
	res   classifier.VoiceResult
	calls atomic.Int32
}

func (s *stubVoice) ClassifyVoice(_ context.Context, _ []byte) (*classifier.VoiceResult, error) {
	s.calls.Add(1)
	res := s.res
	return &res, nil
}

// startControl wires a driver to push-fed capture sources and serves the
// control mux over httptest, the same shape runSession builds.
func startControl(t *testing.T, cfg *config.Config, face session.FaceClassifier, voice session.VoiceClassifier) (*session.Driver, *httptest.Server) {
	t.Helper()

	driver, err := session.NewDriver(cfg, face, voice, nil, zerolog.Nop())
	require.NoError(t, err)

	mic := audio.NewPushSource(cfg.Audio.NativeRate)
	frames := session.NewLatestFrame(frameTTL)
	require.NoError(t, driver.Start(mic, frames))
	t.Cleanup(func() { driver.Stop() })

	srv := httptest.NewServer(newControlMux(driver, mic, frames, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return driver, srv
}

func encodeSamples(value float32, n int) []byte {
	body := make([]byte, n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(body[i*4:], math.Float32bits(value))
	}
	return body
}

func TestControl_PostedFrameReachesFusion(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Session.FaceInterval = 5 * time.Millisecond

	face := &stubFace{res: classifier.FaceResult{Pos: 0.8, Neu: 0.1, Fru: 0.1}}
	driver, srv := startControl(t, cfg, face, &stubVoice{})

	resp, err := http.Post(srv.URL+"/frame", "image/jpeg", bytes.NewReader([]byte{0xff, 0xd8, 0x01}))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return face.calls.Load() >= 1 && driver.Fused().Positive > 0.6
	}, 2*time.Second, 5*time.Millisecond, "posted crop should flow through the face pipeline into fusion")
}

func TestControl_PostedAudioReachesFusion(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Audio.NativeRate = 16000
	cfg.Audio.TargetRate = 16000
	cfg.Audio.ChunkSeconds = 0.25

	voice := &stubVoice{res: classifier.VoiceResult{Pos: 0.7, Neu: 0.2, Fru: 0.1, VAD: 0.9}}
	driver, srv := startControl(t, cfg, &stubFace{}, voice)

	// One full 4000-sample window of voiced audio.
	resp, err := http.Post(srv.URL+"/audio", "application/octet-stream", bytes.NewReader(encodeSamples(0.5, 4000)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return voice.calls.Load() >= 1 && driver.Snapshot().Fusion.Voice != emotion.Uniform()
	}, 2*time.Second, 5*time.Millisecond, "posted audio should flow through the chunker into fusion")
}

func TestControl_StepReturnsDecision(t *testing.T) {
	_, srv := startControl(t, config.DefaultConfig(), &stubFace{}, &stubVoice{})

	resp, err := http.Post(srv.URL+"/step", "application/json",
		bytes.NewReader([]byte(`{"correct": true, "mastery": 0.5}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res session.StepResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.NotEmpty(t, res.Arm)
	require.GreaterOrEqual(t, res.Difficulty, session.MinDifficulty)
	require.LessOrEqual(t, res.Difficulty, session.MaxDifficulty)
}

func TestControl_RejectsMalformedIngest(t *testing.T) {
	_, srv := startControl(t, config.DefaultConfig(), &stubFace{}, &stubVoice{})

	// Audio body not a whole number of float32 samples.
	resp, err := http.Post(srv.URL+"/audio", "application/octet-stream", bytes.NewReader([]byte{1, 2, 3}))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Empty frame.
	resp, err = http.Post(srv.URL+"/frame", "image/jpeg", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Ingest routes are POST-only.
	resp, err = http.Get(srv.URL + "/frame")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDecodeSamples_RoundTrip(t *testing.T) {
	in := []float32{0.5, -0.25, 1}
	body := make([]byte, 0, len(in)*4)
	for _, s := range in {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(s))
		body = append(body, b[:]...)
	}

	out, err := decodeSamples(body)
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = decodeSamples([]byte{1, 2})
	require.Error(t, err)
	_, err = decodeSamples(nil)
	require.Error(t, err)
}
