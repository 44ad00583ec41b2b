package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(&Config{BaseURL: url, Timeout: 2 * time.Second}, zerolog.Nop())
}

func TestClassifyFace_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fer", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		file, _, err := r.FormFile("file")
		require.NoError(t, err, "payload must arrive as multipart field 'file'")
		file.Close()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pos": 0.6, "neu": 0.3, "fru": 0.1}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.ClassifyFace(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.Equal(t, 0.6, res.Pos)
	assert.Equal(t, 0.3, res.Neu)
	assert.Equal(t, 0.1, res.Fru)
}

func TestClassifyVoice_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ser", r.URL.Path)
		w.Write([]byte(`{"pos": 0.2, "neu": 0.5, "fru": 0.3, "vad": 0.9}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.ClassifyVoice(context.Background(), []byte("wav-bytes"))
	require.NoError(t, err)
	assert.Equal(t, 0.9, res.VAD)
}

func TestClassify_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"out of range", `{"pos": 1.5, "neu": 0.3, "fru": 0.1}`},
		{"negative", `{"pos": -0.1, "neu": 0.3, "fru": 0.1}`},
		{"not json", `<html>oops</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestClient(srv.URL)
			_, err := c.ClassifyFace(context.Background(), nil)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestClassify_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.ClassifyVoice(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestClassify_Unreachable(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1") // nothing listens here
	_, err := c.ClassifyFace(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestClassify_InFlightGuardSkipsOverlap(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"pos": 0.4, "neu": 0.4, "fru": 0.2}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.ClassifyFace(context.Background(), nil)
		assert.NoError(t, err)
	}()

	// Wait for the first call to occupy the guard.
	require.Eventually(t, c.FaceBusy, time.Second, time.Millisecond)

	// The overlapping cycle is rejected, not queued.
	_, err := c.ClassifyFace(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrBusy))

	close(release)
	wg.Wait()

	// Guard releases after completion.
	assert.False(t, c.FaceBusy())
}

func TestClassify_GuardsAreIndependentPerModality(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fer" {
			<-release
		}
		w.Write([]byte(`{"pos": 0.4, "neu": 0.4, "fru": 0.2, "vad": 0.5}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.ClassifyFace(context.Background(), nil)
	}()
	require.Eventually(t, c.FaceBusy, time.Second, time.Millisecond)

	// A pending face call must not block the voice path.
	_, err := c.ClassifyVoice(context.Background(), nil)
	assert.NoError(t, err)

	close(release)
	wg.Wait()
}
