package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"integritas-mcp/internal/upstream"
	"integritas-mcp/internal/version"
)

func TestReadyNotConfigured(t *testing.T) {
	svc := New(upstream.New(upstream.Options{}), Options{})
	report := svc.Ready(context.Background(), "r", "")
	assert.Equal(t, "down", report.Status)
	assert.False(t, report.UpstreamReachable)
	assert.Equal(t, "Upstream health URL not configured", report.Summary)
	assert.Equal(t, version.ServerName, report.Server)
}

func TestReadyStates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "k-123456", r.Header.Get("x-api-key"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	up := upstream.New(upstream.Options{MaxRetries: 0})

	ok := New(up, Options{HealthURL: srv.URL + "/health"}).Ready(context.Background(), "r", "k-123456")
	assert.True(t, ok.OK())
	require.NotNil(t, ok.UpstreamStatus)
	assert.Equal(t, 200, *ok.UpstreamStatus)

	degraded := New(up, Options{HealthURL: srv.URL + "/broken"}).Ready(context.Background(), "r", "k-123456")
	assert.Equal(t, "degraded", degraded.Status)
	assert.Equal(t, "Upstream returned 503", degraded.Summary)

	down := New(up, Options{HealthURL: "http://127.0.0.1:1/health"}).Ready(context.Background(), "r", "")
	assert.Equal(t, "down", down.Status)
	assert.False(t, down.UpstreamReachable)
}

func TestSelfHealth(t *testing.T) {
	h := New(upstream.New(upstream.Options{}), Options{Version: "9.9.9"}).SelfHealth()
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, os.Getpid(), h.PID)
	assert.Equal(t, "9.9.9", h.Version)
}
