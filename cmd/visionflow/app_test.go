package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/visionflow/agent/artifacts"
	"github.com/BaSui01/visionflow/agent/bytestream"
	"github.com/BaSui01/visionflow/agent/streaming"
	"github.com/BaSui01/visionflow/config"
	"github.com/BaSui01/visionflow/testutil/fixtures"
)

func fakeGemini(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}},
				"finishReason": "STOP",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// NewApp registers the Prometheus collector globally, so the whole worker
// is exercised from this single test.
func TestApp_EndToEnd(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Auth.JWTSecret = "s3cret"
	cfg.Redis.Addr = mr.Addr()
	cfg.Artifacts.Dir = dir
	cfg.Artifacts.Index = "db"
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(dir, "artifacts.db")
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.BaseURL = fakeGemini(t, "Hello student").URL
	cfg.Agent.AutoReply = false
	require.NoError(t, cfg.Validate())

	app, err := NewApp(cfg, zap.NewNop())
	require.NoError(t, err)
	checks := app.readinessChecks()
	assert.Contains(t, checks, "redis")
	assert.Contains(t, checks, "database")

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()
	require.Eventually(t, app.http.IsRunning, 5*time.Second, 10*time.Millisecond)
	base := "http://" + app.http.Addr()

	resp, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// join, get greeted, send a picture
	token, err := newAuthenticator(cfg.Auth).IssueToken("alice", "math", time.Minute)
	require.NoError(t, err)
	wsCtx, wsCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer wsCancel()
	conn, err := streaming.Dial(wsCtx, "ws"+strings.TrimPrefix(base, "http")+"/rooms/math/ws", token, nil)
	require.NoError(t, err)

	joined, err := conn.ReadFrame(wsCtx)
	require.NoError(t, err)
	require.Equal(t, streaming.FrameJoined, joined.Type)
	greeting, err := conn.ReadFrame(wsCtx)
	require.NoError(t, err)
	assert.Equal(t, streaming.FrameAgentReply, greeting.Type)
	assert.Equal(t, "Hello student", greeting.Text)

	info := bytestream.Info{ID: "s1", Topic: cfg.Agent.ByteStreamTopic, Name: "photo"}
	for _, f := range streaming.StreamFrames(info, fixtures.PNG, 8) {
		require.NoError(t, conn.WriteFrame(wsCtx, f))
	}
	require.Eventually(t, func() bool {
		list, err := app.artifacts.List(context.Background(), artifacts.Query{Kind: artifacts.KindReceived})
		return err == nil && len(list) == 1
	}, 5*time.Second, 20*time.Millisecond)

	list, err := app.artifacts.List(context.Background(), artifacts.Query{})
	require.NoError(t, err)
	saved, err := os.ReadFile(filepath.Join(dir, list[0].Name))
	require.NoError(t, err)
	assert.Equal(t, fixtures.PNG, saved)
	assert.Equal(t, joined.SessionID, list[0].SessionID)

	require.Eventually(t, func() bool {
		return len(mr.Keys()) > 0
	}, 5*time.Second, 20*time.Millisecond, "context snapshot was not stored")

	require.NoError(t, conn.Close())
	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	app.Close()
}

func TestLoadConfig_FileAndValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  allow_anonymous: true\nserver:\n  addr: \":9090\"\n"), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.Auth.AllowAnonymous)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("artifacts:\n  index: s3\n"), 0o600))
	_, err = loadConfig(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		cfg   config.LogConfig
		debug bool
	}{
		{config.LogConfig{Level: "debug", Format: "console"}, true},
		{config.LogConfig{Level: "info", Format: "json"}, false},
		{config.LogConfig{Level: "bogus"}, false},
	}
	for _, tt := range tests {
		logger := initLogger(tt.cfg)
		require.NotNil(t, logger)
		assert.Equal(t, tt.debug, logger.Core().Enabled(zap.DebugLevel))
	}
}
