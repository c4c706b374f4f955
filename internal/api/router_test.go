package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prettyqr/internal/api/handlers"
	"prettyqr/internal/api/middleware"
	"prettyqr/internal/engine/qr"
	"prettyqr/internal/engine/render"
	"prettyqr/internal/engine/sessions"
	"prettyqr/internal/engine/studio"
	"prettyqr/internal/pkg/errors"
)

type testServer struct {
	*httptest.Server
	clock    clockwork.FakeClock
	registry *sessions.Registry
}

func newTestServer(t *testing.T, maxSessions, exportsPerMinute int) *testServer {
	t.Helper()

	backend, err := qr.New(qr.DefaultBackend)
	require.NoError(t, err)
	encoder := render.NewEncoder(backend)
	clock := clockwork.NewFakeClock()
	metrics := handlers.NewMetrics()

	registry := sessions.NewRegistry(func() *studio.Pipeline {
		return studio.New(encoder, studio.DefaultSettings(),
			studio.WithClock(clock),
			studio.WithLogger(zerolog.Nop()),
			studio.WithEventHook(metrics.Observe))
	}, time.Hour, maxSessions, clock)

	router := NewRouter(&Dependencies{
		SessionHandler:    handlers.NewSessionHandler(registry, metrics),
		LiveHandler:       handlers.NewLiveHandler(),
		HealthHandler:     handlers.NewHealthHandler(encoder, registry),
		MetricsHandler:    handlers.NewMetricsHandler(metrics, registry),
		SessionMiddleware: middleware.NewSessionMiddleware(registry),
		RateLimiter:       middleware.NewRateLimiter(clock),
		ExportsPerMinute:  exportsPerMinute,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		registry.CloseAll()
	})
	return &testServer{Server: srv, clock: clock, registry: registry}
}

func (s *testServer) do(t *testing.T, method, path string, body string, header http.Header) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		ID      string         `json:"id"`
		Request studio.Request `json:"request"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.ID)
	assert.True(t, body.Request.TransparentBackground)
	assert.Equal(t, studio.DefaultPixelSize, body.Request.PixelSize)
	return body.ID
}

func decodeError(t *testing.T, resp *http.Response) errors.ErrorResponse {
	t.Helper()
	var body errors.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestRouter_SessionLifecycle(t *testing.T) {
	s := newTestServer(t, 0, 3)
	id := s.createSession(t)
	base := "/api/v1/sessions/" + id

	resp := s.do(t, http.MethodPatch, base, `{"payload":"hello","pixel_size":9999}`, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var updated struct {
		Request studio.Request `json:"request"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.Equal(t, "hello", updated.Request.Payload)
	assert.Equal(t, studio.DefaultMaxSize, updated.Request.PixelSize)

	// Nothing is rendered until the debounce delay elapses.
	resp = s.do(t, http.MethodGet, base+"/preview", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	s.clock.Advance(studio.DefaultDelay)
	require.Eventually(t, func() bool {
		session, _ := s.registry.Get(id)
		return session.Pipeline.Artifact() != nil
	}, 2*time.Second, 10*time.Millisecond)

	resp = s.do(t, http.MethodGet, base+"/preview", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")))

	resp = s.do(t, http.MethodGet, base+"/preview", "", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	resp = s.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state struct {
		Artifact struct {
			Fingerprint string `json:"fingerprint"`
			Generation  uint64 `json:"generation"`
			DataURI     string `json:"data_uri"`
		} `json:"artifact"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, uint64(1), state.Artifact.Generation)
	assert.Equal(t, `"`+state.Artifact.Fingerprint+`"`, etag)
	assert.True(t, strings.HasPrefix(state.Artifact.DataURI, "data:image/png;base64,"))

	resp = s.do(t, http.MethodGet, base+"/export/png", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="qr-code.png"`, resp.Header.Get("Content-Disposition"))

	resp = s.do(t, http.MethodGet, base+"/export/svg", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="qr-code.svg"`, resp.Header.Get("Content-Disposition"))

	resp = s.do(t, http.MethodGet, base+"/export/gif", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, base+"/export/png", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeRateLimitExceeded, decodeError(t, resp).Code)

	resp = s.do(t, http.MethodPost, base+"/reset", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodGet, base+"/preview", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	metrics, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(metrics), "prettyqr_renders_total 1\n")
	assert.Contains(t, string(metrics), "prettyqr_exports_total 2\n")
	assert.Contains(t, string(metrics), "prettyqr_sessions_active 1\n")

	resp = s.do(t, http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = s.do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeNotFound, decodeError(t, resp).Code)
}

func TestRouter_GenerateAndExportErrors(t *testing.T) {
	s := newTestServer(t, 0, 0)
	id := s.createSession(t)
	base := "/api/v1/sessions/" + id

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"export empty payload", http.MethodGet, base + "/export/png", "", http.StatusConflict, errors.ErrCodeEmptyPayload},
		{"invalid body", http.MethodPatch, base, `{"payload":`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"empty patch", http.MethodPatch, base, `{}`, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"unknown session", http.MethodGet, "/api/v1/sessions/nope", "", http.StatusNotFound, errors.ErrCodeNotFound},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound, errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, tt.method, tt.path, tt.body, nil)
			require.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, resp).Code)
		})
	}

	t.Run("bad color", func(t *testing.T) {
		resp := s.do(t, http.MethodPatch, base, `{"payload":"hello","module_color":"nope"}`, nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		resp = s.do(t, http.MethodPost, base+"/generate", "", nil)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, errors.ErrCodeEncodeFailed, decodeError(t, resp).Code)

		resp = s.do(t, http.MethodGet, base+"/export/png", "", nil)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, errors.ErrCodeEncodeFailed, decodeError(t, resp).Code)
	})

	t.Run("generate renders immediately", func(t *testing.T) {
		resp := s.do(t, http.MethodPatch, base, `{"module_color":"#000000"}`, nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		resp = s.do(t, http.MethodPost, base+"/generate", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = s.do(t, http.MethodGet, base+"/preview", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestRouter_TooManySessions(t *testing.T) {
	s := newTestServer(t, 1, 0)
	s.createSession(t)

	resp := s.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, errors.ErrCodeTooManySessions, decodeError(t, resp).Code)
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, 0, 0)
	s.createSession(t)

	resp := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status   string            `json:"status"`
		Backend  string            `json:"backend"`
		Sessions int               `json:"sessions"`
		Checks   map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, qr.DefaultBackend, body.Backend)
	assert.Equal(t, 1, body.Sessions)
	assert.Equal(t, "healthy", body.Checks["encoder"])
}

func TestRouter_LiveStream(t *testing.T) {
	s := newTestServer(t, 0, 0)
	id := s.createSession(t)
	base := "/api/v1/sessions/" + id

	s.do(t, http.MethodPatch, base, `{"payload":"hello"}`, nil)
	resp := s.do(t, http.MethodPost, base+"/generate", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(s.URL, "http") + base + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() handlers.LiveEvent {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var evt handlers.LiveEvent
		require.NoError(t, conn.ReadJSON(&evt))
		return evt
	}

	// The current artifact is replayed on connect.
	first := read()
	assert.Equal(t, studio.EventRendered, first.Kind)
	assert.Equal(t, uint64(1), first.Generation)

	s.do(t, http.MethodPatch, base, `{"payload":"world"}`, nil)
	s.clock.Advance(studio.DefaultDelay)
	second := read()
	assert.Equal(t, studio.EventRendered, second.Kind)
	assert.Equal(t, uint64(2), second.Generation)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
	assert.True(t, strings.HasPrefix(second.DataURI, "data:image/png;base64,"))

	s.do(t, http.MethodPatch, base, `{"payload":""}`, nil)
	s.clock.Advance(studio.DefaultDelay)
	assert.Equal(t, studio.EventCleared, read().Kind)

	s.do(t, http.MethodDelete, base, "", nil)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}
