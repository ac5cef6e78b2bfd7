package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/vizopt/advisor"
	"github.com/hazyhaar/vizopt/config"
	"github.com/hazyhaar/vizopt/history"
	"github.com/hazyhaar/vizopt/publish"
	"github.com/hazyhaar/vizopt/segment"
	"github.com/hazyhaar/vizopt/shield"
)

const version = "0.1.0"

// app holds the long-lived components of one process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	svc     *segment.Service
	history *history.Store
	metrics *history.Metrics
}

// newApp wires the advisor, run history, publisher and pipeline from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	advCfg := cfg.Advisor
	advCfg.Logger = logger
	adv, err := advisor.New(advCfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	var opts []segment.Option

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		a.history = store
		a.metrics = history.NewMetrics(store.DB, 0, 0, logger)
		opts = append(opts, segment.WithHistory(store), segment.WithStageMetrics(a.metrics))
	}

	if cfg.Publish.S3.Enabled() {
		pub, err := publish.NewS3(ctx, cfg.Publish.S3)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, segment.WithPublisher(pub))
		logger.Info("publishing best images", "bucket", cfg.Publish.S3.Bucket, "prefix", cfg.Publish.S3.Prefix)
	}

	a.svc = segment.New(cfg, adv, logger, opts...)
	return a, nil
}

// Close stops the browser, flushes stage metrics and closes the history
// database.
func (a *app) Close() {
	if a.svc != nil {
		if err := a.svc.Close(); err != nil {
			a.logger.Warn("close browser", "error", err)
		}
	}
	if a.metrics != nil {
		a.metrics.Close()
	}
	if a.history != nil {
		a.history.Close()
	}
}

// sweepMetrics deletes stage timings older than the configured retention,
// once at start and then hourly until ctx is done.
func (a *app) sweepMetrics(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := a.metrics.Cleanup(ctx, a.cfg.History.MetricsRetention)
		if err != nil {
			a.logger.Warn("metrics cleanup", "error", err)
		} else if n > 0 {
			a.logger.Info("metrics cleanup", "removed", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// mcpServer builds the MCP server. local adds the tools that read host
// files; it is set for stdio only.
func (a *app) mcpServer(local bool) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "vizopt", Version: version}, nil)
	if local {
		a.svc.RegisterLocalMCP(srv)
	} else {
		a.svc.RegisterMCP(srv)
	}
	return srv
}

// router builds the HTTP surface: CORS for the browser front end, the
// shield stack, health, the pipeline routes and optionally /mcp.
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"X-Trace-ID"},
		MaxAge:         300,
	}))

	// Validate already rejected malformed entries.
	trusted, _ := shield.ParseTrustedProxies(a.cfg.Server.TrustedProxies)
	stack := shield.StackConfig{MaxBodyBytes: a.cfg.Server.MaxBodyBytes, TrustedProxies: trusted}
	if n := a.cfg.Server.RatePerMinute; n > 0 {
		stack.RateLimits = map[string]shield.RateLimitConfig{
			"POST /process-urls": {MaxRequests: n, WindowSeconds: 60},
		}
	}
	for _, mw := range shield.DefaultAPIStack(stack) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	a.svc.RegisterHTTP(r)

	if a.cfg.Server.MCP {
		srv := a.mcpServer(false)
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
		r.Handle("/mcp", h)
		r.Handle("/mcp/*", h)
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
