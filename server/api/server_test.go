package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg Config, logOut *bytes.Buffer) *Server {
	t.Helper()
	if logOut == nil {
		logOut = &bytes.Buffer{}
	}
	return NewServer(cfg, zerolog.New(logOut))
}

func TestServerAssignsRequestID(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, DefaultConfig(), nil)
	s.Router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"state": "idle"})
	}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	id := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	require.NoError(t, err, "generated request IDs are UUIDs")
}

func TestServerHonorsCallerRequestID(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, DefaultConfig(), nil)
	s.Router.HandleFunc("/flush", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusAccepted, map[string]any{"flushing": true})
	}).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/flush", nil)
	req.Header.Set("X-Request-ID", "op-7")
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, "op-7", rec.Header().Get("X-Request-ID"))
}

func TestServerRecoversPanicsWithErrorEnvelope(t *testing.T) {
	t.Parallel()

	var logOut bytes.Buffer
	s := newTestServer(t, DefaultConfig(), &logOut)
	s.Router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "internal", body["error"]["code"])
	require.NotEmpty(t, body["error"]["request_id"])

	assert.Contains(t, logOut.String(), "admin_panic")
	assert.Contains(t, logOut.String(), "handler exploded")
}

func TestServerQuietPathsLogAtDebug(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.QuietPaths = []string{"/health"}

	var logOut bytes.Buffer
	s := newTestServer(t, cfg, &logOut)
	ok := func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
	}
	s.Router.HandleFunc("/health", ok).Methods(http.MethodGet)
	s.Router.HandleFunc("/status", ok).Methods(http.MethodGet)

	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.http.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var levels []string
	dec := json.NewDecoder(&logOut)
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		if entry["message"] == "admin_request" {
			levels = append(levels, entry["level"].(string))
		}
	}
	require.Equal(t, []string{"debug", "info"}, levels)
}

func TestServerCORSFromConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CORSEnabled = true

	s := newTestServer(t, cfg, nil)
	s.Router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{})
	}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	// Disabled by default.
	plain := newTestServer(t, DefaultConfig(), nil)
	plain.Router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{})
	}).Methods(http.MethodGet)
	rec = httptest.NewRecorder()
	plain.http.Handler.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWriteErrorEnvelope(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/config", nil)
	WriteError(rec, req, http.StatusBadRequest, "invalid_config", "min exceeds max", map[string]any{
		"min_txs_per_block": 100,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_config", body["error"]["code"])
	assert.Equal(t, "min exceeds max", body["error"]["message"])
	assert.NotNil(t, body["error"]["details"])
}
