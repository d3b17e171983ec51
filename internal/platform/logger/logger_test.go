package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestNewWriter_format(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "info", "text").Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	log := NewWriter(&buf, "warn", "json")
	log.Info("dropped")
	log.Warn("kept")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), "expected one JSON record, got %q", buf.String())
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "dash-resolver", rec["service"])
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug", "json")

	r := chi.NewRouter()
	r.Use(RequestLogger(log))
	r.Get("/manifests/{manifest_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/manifests/abc", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "decode log %q", buf.String())
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, float64(404), entry["status"])
	assert.Equal(t, "/manifests/{manifest_id}", entry["route"])
	assert.Equal(t, "abc", entry["manifest_id"])
}
