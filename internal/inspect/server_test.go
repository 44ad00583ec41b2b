package inspect

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/tutorsense/internal/bus"
	"github.com/normanking/tutorsense/internal/logging"
	"github.com/normanking/tutorsense/internal/session"
)

type fakeSnapshotter struct {
	state session.State
}

func (f *fakeSnapshotter) Snapshot() session.State {
	return f.state
}

func startTestServer(t *testing.T, eb *bus.EventBus, interval time.Duration) *Server {
	t.Helper()
	srv := NewServer(&Config{Listen: "127.0.0.1:0", SnapshotInterval: interval}, &fakeSnapshotter{
		state: session.State{SessionID: "test-session", Difficulty: 3, Running: true},
	}, eb, zerolog.Nop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func TestServer_StateEndpoint(t *testing.T) {
	srv := startTestServer(t, nil, time.Second)

	resp, err := http.Get("http://" + srv.Addr() + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state session.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.Equal(t, "test-session", state.SessionID)
	require.Equal(t, 3, state.Difficulty)
}

func TestServer_PushesStateSnapshots(t *testing.T) {
	srv := startTestServer(t, nil, 20*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Kind == "state" {
			require.NotNil(t, msg.State)
			require.Equal(t, "test-session", msg.State.SessionID)
			return
		}
	}
}

func TestServer_ServesLogHistory(t *testing.T) {
	srv := startTestServer(t, nil, time.Second)

	// Before a logger attaches the route reports unavailable.
	resp, err := http.Get("http://" + srv.Addr() + "/logs")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	logger, err := logging.New(&logging.Config{
		LogDir:     t.TempDir(),
		Level:      logging.LevelDebug,
		MaxHistory: 100,
		Console:    false,
	})
	require.NoError(t, err)
	defer logger.Close()

	srv.ForwardLogs(logger)
	logger.Info("test", "History entry", nil)

	resp, err = http.Get("http://" + srv.Addr() + "/logs?limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Path    string             `json:"path"`
		Entries []logging.LogEntry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.NotEmpty(t, payload.Path)
	require.NotEmpty(t, payload.Entries)
	require.Equal(t, "History entry", payload.Entries[len(payload.Entries)-1].Message)
}

func TestServer_StreamsBusEvents(t *testing.T) {
	eb := bus.NewEventBus()
	srv := startTestServer(t, eb, time.Hour)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// Republish until the frame comes through; connection registration and
	// the first publish race otherwise.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				eb.Publish(bus.Event{
					Type: bus.EventTypeFusedVector,
					Data: map[string]any{"positive": 0.5},
				})
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Kind == "event" && msg.Event != nil && msg.Event.Type == string(bus.EventTypeFusedVector) {
			require.InDelta(t, 0.5, msg.Event.Data["positive"], 1e-9)
			return
		}
	}
}
