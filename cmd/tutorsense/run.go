package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/tutorsense/internal/audio"
	"github.com/normanking/tutorsense/internal/bus"
	"github.com/normanking/tutorsense/internal/classifier"
	"github.com/normanking/tutorsense/internal/config"
	"github.com/normanking/tutorsense/internal/inspect"
	"github.com/normanking/tutorsense/internal/logging"
	"github.com/normanking/tutorsense/internal/session"
)

// frameTTL bounds how long a posted crop stays current; a host that stops
// posting shows up as a face-loss episode after this long.
const frameTTL = time.Second

// maxIngestBytes caps one posted frame or audio segment.
const maxIngestBytes = 8 << 20

// stepRequest is the control-endpoint payload for one answered question.
type stepRequest struct {
	Correct bool    `json:"correct"`
	Mastery float64 `json:"mastery"`
}

func newRunCmd() *cobra.Command {
	var controlAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a tutoring session pipeline",
		Long: `Starts the affect pipeline and a control endpoint. The host feeds
media through the control address (POST /frame with a JPEG face crop,
POST /audio with raw little-endian float32 samples at the configured
native rate) and the tutoring backend reports each answered question
with POST /step; the response carries the reward and the next
difficulty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(controlAddr)
		},
	}

	cmd.Flags().StringVar(&controlAddr, "control", "127.0.0.1:7979", "control endpoint listen address")
	return cmd
}

func runSession(controlAddr string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(nil)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()

	eventBus := bus.NewEventBus()
	client := classifier.NewClient(&classifier.Config{
		BaseURL: cfg.Classifier.BaseURL,
		Timeout: cfg.Classifier.Timeout,
	}, logger.Zerolog())

	driver, err := session.NewDriver(cfg, client, client, eventBus, logger.Zerolog())
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	if cfg.Debug.Enabled {
		inspector := inspect.NewServer(&inspect.Config{
			Listen:           cfg.Debug.Listen,
			SnapshotInterval: time.Second,
		}, driver, eventBus, logger.Zerolog())
		if err := inspector.Start(); err != nil {
			return fmt.Errorf("start inspector: %w", err)
		}
		inspector.ForwardLogs(logger)
		defer inspector.Stop()
	}

	config.Watch(driver.ApplyConfig)

	mic := audio.NewPushSource(cfg.Audio.NativeRate)
	frames := session.NewLatestFrame(frameTTL)
	if err := driver.Start(mic, frames); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer driver.Stop()

	log := logger.Component("control")
	control := &http.Server{
		Addr:    controlAddr,
		Handler: newControlMux(driver, mic, frames, log),
	}
	go func() {
		if err := control.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Control endpoint stopped")
		}
	}()
	log.Info().
		Str("addr", controlAddr).
		Str("log_file", logger.GetLogPath()).
		Msg("Control endpoint listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return control.Shutdown(shutdownCtx)
}

// newControlMux builds the control endpoint: media ingest plus the answer
// step, mirroring the classifier-facing routes of the hosted backend.
func newControlMux(driver *session.Driver, mic *audio.PushSource, frames *session.LatestFrame, log zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/step", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var req stepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res, err := driver.Step(req.Correct, req.Mastery)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	})

	mux.HandleFunc("/frame", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		crop, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBytes))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(crop) == 0 {
			http.Error(w, "empty frame", http.StatusBadRequest)
			return
		}
		frames.Set(crop)
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/audio", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBytes))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		samples, err := decodeSamples(body)
		if err != nil {
			log.Debug().Err(err).Msg("Rejected audio segment")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mic.Push(samples)
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

// decodeSamples parses a raw little-endian float32 sample stream.
func decodeSamples(body []byte) ([]float32, error) {
	if len(body) == 0 || len(body)%4 != 0 {
		return nil, fmt.Errorf("audio body must be non-empty little-endian float32 samples, got %d bytes", len(body))
	}
	samples := make([]float32, len(body)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return samples, nil
}
