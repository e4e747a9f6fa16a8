package main

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/scrypster/xmemory/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStartServer_SQLiteSessions(t *testing.T) {
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Backend:  config.BackendConfig{BaseURL: "http://127.0.0.1:1/api/v1", Timeout: time.Second},
		Session:  config.SessionConfig{Engine: config.EngineSQLite, DataPath: filepath.Join(t.TempDir(), "data"), CookieName: "xmemory_session"},
		Security: config.SecurityConfig{RateLimit: 100, RateBurst: 100},
		UI:       config.UIConfig{PageSize: 10},
	}

	ctx, cancel := context.WithCancel(context.Background())
	addr, closeStore, err := startServer(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() {
		cancel()
		closeStore()
	}()

	resp, err := http.Get("http://" + addr + "/api/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The login page issues a session cookie without touching the backend.
	resp2, err := http.Get("http://" + addr + "/login")
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.NotEmpty(t, resp2.Cookies())
}

func TestStartServer_BadEngine(t *testing.T) {
	cfg := &config.Config{Session: config.SessionConfig{Engine: "redis"}}
	_, _, err := startServer(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
