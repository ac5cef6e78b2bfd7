package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hazyhaar/vizopt/config"
	"github.com/hazyhaar/vizopt/segment"
)

type noShooter struct{}

func (noShooter) Screenshot(context.Context, string) ([]byte, error) {
	return nil, errors.New("no browser in tests")
}

func newTestApp(t *testing.T, mutate func(*config.Config)) *app {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.Paths.InputRoot = filepath.Join(root, "input")
	cfg.Paths.DatasetRoot = filepath.Join(root, "dataset")
	cfg.Paths.BestRoot = filepath.Join(root, "best")
	cfg.History.Path = ""
	if mutate != nil {
		mutate(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &app{
		cfg:    &cfg,
		logger: logger,
		svc:    segment.New(&cfg, nil, logger, segment.WithScreenshotter(noShooter{})),
	}
}

func TestRouter_Health(t *testing.T) {
	h := newTestApp(t, nil).router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := newTestApp(t, nil).router()

	req := httptest.NewRequest(http.MethodOptions, "/process-urls", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_ProcessURLsValidation(t *testing.T) {
	h := newTestApp(t, nil).router()

	req := httptest.NewRequest(http.MethodPost, "/process-urls", strings.NewReader(`{"urls":["https://a.com"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Exactly 3 URLs are required"}`, rec.Body.String())
}

func TestRouter_RateLimit(t *testing.T) {
	h := newTestApp(t, func(c *config.Config) { c.Server.RatePerMinute = 1 }).router()

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/process-urls", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusBadRequest, post())
	assert.Equal(t, http.StatusTooManyRequests, post())

	// Other routes are not limited.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MCPMounted(t *testing.T) {
	off := newTestApp(t, nil).router()
	rec := httptest.NewRecorder()
	off.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	routerMiss := rec.Body.String()

	// The MCP handler rejects a malformed POST itself instead of the
	// router's 404.
	on := newTestApp(t, func(c *config.Config) { c.Server.MCP = true }).router()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	on.ServeHTTP(rec, req)
	assert.NotEqual(t, routerMiss, rec.Body.String())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestApp_HistoryAndStats(t *testing.T) {
	cfg := config.Default()
	root := t.TempDir()
	cfg.Paths.InputRoot = filepath.Join(root, "input")
	cfg.Paths.DatasetRoot = filepath.Join(root, "dataset")
	cfg.Paths.BestRoot = filepath.Join(root, "best")
	cfg.History.Path = filepath.Join(root, "history.db")
	cfg.Advisor.APIKey = "test-key"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(context.Background(), &cfg, logger)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.sweepMetrics(ctx)

	h := a.router()
	for _, path := range []string{"/api/runs", "/api/stats"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestOverrideLogLevel(t *testing.T) {
	cfg := config.Default()
	assert.NoError(t, overrideLogLevel(&cfg, ""))
	assert.Equal(t, "info", cfg.LogLevel)

	assert.NoError(t, overrideLogLevel(&cfg, "debug"))
	assert.Equal(t, "debug", cfg.LogLevel)

	err := overrideLogLevel(&cfg, "verbose")
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), `got "verbose"`)
	}
}
