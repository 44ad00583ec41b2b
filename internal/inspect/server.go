// Package inspect serves the read-only debug stream: a websocket endpoint
// that pushes pipeline events, session state snapshots, and log entries to
// attached inspectors while a session runs.
package inspect

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/tutorsense/internal/bus"
	"github.com/normanking/tutorsense/internal/logging"
	"github.com/normanking/tutorsense/internal/session"
)

// Config holds inspector configuration
type Config struct {
	Listen           string        `json:"listen"`
	SnapshotInterval time.Duration `json:"snapshot_interval"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Listen:           "127.0.0.1:7878",
		SnapshotInterval: time.Second,
	}
}

// Snapshotter supplies the session state pushed on each snapshot tick.
// Satisfied by session.Driver.
type Snapshotter interface {
	Snapshot() session.State
}

// Message is one frame on the inspector stream.
type Message struct {
	Kind  string            `json:"kind"` // event, state, log
	Time  time.Time         `json:"time"`
	Event *EventMessage     `json:"event,omitempty"`
	State *session.State    `json:"state,omitempty"`
	Log   *logging.LogEntry `json:"log,omitempty"`
}

// EventMessage mirrors a bus event on the wire.
type EventMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// streamedEvents are the bus events forwarded to inspectors.
var streamedEvents = []bus.EventType{
	bus.EventTypeChunkDispatched,
	bus.EventTypeChunkSkipped,
	bus.EventTypeCaptureStarted,
	bus.EventTypeCaptureStopped,
	bus.EventTypeVoiceLost,
	bus.EventTypeVoiceRecovered,
	bus.EventTypeFaceLost,
	bus.EventTypeFaceRecovered,
	bus.EventTypeFusedVector,
	bus.EventTypeVoiceGated,
	bus.EventTypeRewardComputed,
	bus.EventTypeActionChosen,
	bus.EventTypeSessionStarted,
	bus.EventTypeSessionStopped,
	bus.EventTypeConfigUpdated,
}

// Server is the websocket debug stream. It never accepts input from clients;
// inbound frames are read only to service the connection.
type Server struct {
	config   *Config
	snap     Snapshotter
	eventBus *bus.EventBus
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	started  bool
	listener net.Listener
	httpSrv  *http.Server
	conns    map[*websocket.Conn]struct{}
	stopCh   chan struct{}
	logs     *logging.Logger
}

// NewServer creates an inspector server over the given snapshot source.
func NewServer(config *Config, snap Snapshotter, eventBus *bus.EventBus, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SnapshotInterval <= 0 {
		config.SnapshotInterval = time.Second
	}
	return &Server{
		config: config,
		snap:   snap,
		logger: logger.With().Str("component", "inspect").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		eventBus: eventBus,
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// Start binds the listen address and begins serving /ws and /state.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/logs", s.handleLogs)

	s.listener = ln
	s.httpSrv = &http.Server{Handler: mux}
	s.stopCh = make(chan struct{})
	s.started = true
	s.mu.Unlock()

	if s.eventBus != nil {
		s.eventBus.SubscribeMultiple(streamedEvents, s.forwardEvent)
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Inspector server stopped")
		}
	}()
	go s.snapshotLoop()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Inspector listening")
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the server and all attached inspector connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopCh)
	srv := s.httpSrv
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	return srv.Close()
}

// ForwardLogs streams the logger's real-time entries to inspectors and makes
// its in-memory history available at /logs.
func (s *Server) ForwardLogs(l *logging.Logger) {
	s.mu.Lock()
	s.logs = l
	s.mu.Unlock()

	l.SetOnLog(func(entry logging.LogEntry) {
		s.broadcast(Message{Kind: "log", Time: time.Now(), Log: &entry})
	})
}

// handleWS upgrades the connection and registers it for broadcasts.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Inspector attached")

	// Inbound frames carry nothing; the read loop only services control
	// frames and detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.drop(conn)
				return
			}
		}
	}()
}

// handleState serves a one-shot JSON snapshot.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	if s.snap == nil {
		http.Error(w, "no session attached", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	state := s.snap.Snapshot()
	if err := json.NewEncoder(w).Encode(state); err != nil {
		s.logger.Warn().Err(err).Msg("State encode failed")
	}
}

// handleLogs serves the recent in-memory log history.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	logs := s.logs
	s.mu.Unlock()

	if logs == nil {
		http.Error(w, "no logger attached", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	payload := struct {
		Path    string             `json:"path"`
		Entries []logging.LogEntry `json:"entries"`
	}{
		Path:    logs.GetLogPath(),
		Entries: logs.GetHistory(limit),
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn().Err(err).Msg("Log history encode failed")
	}
}

// snapshotLoop pushes periodic state frames while running.
func (s *Server) snapshotLoop() {
	ticker := time.NewTicker(s.config.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.snap == nil {
				continue
			}
			state := s.snap.Snapshot()
			s.broadcast(Message{Kind: "state", Time: time.Now(), State: &state})
		}
	}
}

// forwardEvent relays one bus event to all inspectors.
func (s *Server) forwardEvent(ev bus.Event) {
	s.broadcast(Message{
		Kind:  "event",
		Time:  time.Now(),
		Event: &EventMessage{Type: string(ev.Type), Data: ev.Data},
	})
}

// broadcast writes one frame to every connection, dropping the dead ones.
func (s *Server) broadcast(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

// drop removes a closed connection.
func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.Close()
	delete(s.conns, conn)
	s.logger.Debug().Msg("Inspector detached")
}
