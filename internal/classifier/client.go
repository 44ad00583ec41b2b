package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Client talks to the remote /fer and /ser endpoints. At most one call per
// modality is in flight at a time; a cycle arriving while the previous call
// is still pending gets ErrBusy and must be skipped.
type Client struct {
	config *Config
	http   *http.Client
	logger zerolog.Logger

	faceBusy  atomic.Bool
	voiceBusy atomic.Bool
}

// NewClient creates a classifier client
func NewClient(config *Config, logger zerolog.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: logger.With().Str("component", "classifier").Logger(),
	}
}

// ClassifyFace posts a JPEG crop to /fer and returns the emotion fields.
func (c *Client) ClassifyFace(ctx context.Context, jpeg []byte) (*FaceResult, error) {
	if !c.faceBusy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.faceBusy.Store(false)

	var out FaceResult
	if err := c.postFile(ctx, "/fer", "face.jpg", jpeg, &out); err != nil {
		return nil, err
	}
	if !inUnit(out.Pos) || !inUnit(out.Neu) || !inUnit(out.Fru) {
		c.logger.Warn().Interface("response", out).Msg("Malformed /fer response")
		return nil, ErrMalformedResponse
	}
	return &out, nil
}

// ClassifyVoice posts a WAV chunk to /ser and returns the emotion fields and
// the voice-activity score.
func (c *Client) ClassifyVoice(ctx context.Context, wav []byte) (*VoiceResult, error) {
	if !c.voiceBusy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.voiceBusy.Store(false)

	var out VoiceResult
	if err := c.postFile(ctx, "/ser", "chunk.wav", wav, &out); err != nil {
		return nil, err
	}
	if !inUnit(out.Pos) || !inUnit(out.Neu) || !inUnit(out.Fru) || !inUnit(out.VAD) {
		c.logger.Warn().Interface("response", out).Msg("Malformed /ser response")
		return nil, ErrMalformedResponse
	}
	return &out, nil
}

// FaceBusy reports whether a face call is currently in flight.
func (c *Client) FaceBusy() bool {
	return c.faceBusy.Load()
}

// VoiceBusy reports whether a voice call is currently in flight.
func (c *Client) VoiceBusy() bool {
	return c.voiceBusy.Load()
}

// postFile uploads payload as a multipart "file" field and decodes the JSON
// response into out.
func (c *Client) postFile(ctx context.Context, path, filename string, payload []byte, out any) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := fw.Write(payload); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s %s: %s", ErrUnreachable, path, resp.Status, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrMalformedResponse, err)
	}
	return nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 1
}
