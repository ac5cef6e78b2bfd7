// Package shield provides the HTTP middleware of the vizopt API: request
// tracing with a per-request logger, security headers, JSON body limits,
// per-IP rate limiting and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(shield.StackConfig{}) {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"
	"net/netip"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// StackConfig tunes DefaultAPIStack.
type StackConfig struct {
	// MaxBodyBytes limits JSON request bodies. Default: 64 KiB.
	MaxBodyBytes int64
	// RateLimits maps "METHOD /path" to a per-IP limit. Nil disables
	// rate limiting.
	RateLimits map[string]RateLimitConfig
	// TrustedProxies are the peers whose X-Forwarded-For is believed.
	TrustedProxies []netip.Prefix
}

// DefaultAPIStack returns the standard middleware stack, ordered
// HeadAsGet, SecurityHeaders, MaxJSONBody, TraceID, then the rate limiter.
func DefaultAPIStack(cfg StackConfig) []func(http.Handler) http.Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 * 1024
	}
	stack := []func(http.Handler) http.Handler{
		HeadAsGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(cfg.MaxBodyBytes),
		TraceID,
	}
	if len(cfg.RateLimits) > 0 {
		stack = append(stack, NewRateLimiter(cfg.RateLimits, cfg.TrustedProxies).Middleware)
	}
	return stack
}
