// Package shield provides HTTP middleware for the glane daemon: security
// headers, rate limiting, body limits, and request logging with per-request
// structured loggers.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxJSONBody(1 << 20))
//	r.Use(shield.RequestID)
//	r.Use(shield.NewRateLimiter(db, "/healthz").Middleware)
//
// Or apply the default API stack in one call:
//
//	for _, mw := range shield.DefaultAPIStack(db) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger retrieves the per-request logger injected by RequestID.
// Falls back to slog.Default when the middleware did not run.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// DefaultAPIStack returns the standard middleware stack for a JSON API.
// Ordered: HeadToGet, SecurityHeaders, MaxJSONBody, RequestID, RateLimiter.
// Health checks (/healthz) bypass rate limiting. The returned RateLimiter
// handle lets the caller start the reloader or trigger rule reloads.
func DefaultAPIStack(db *sql.DB) ([]func(http.Handler) http.Handler, *RateLimiter) {
	rl := NewRateLimiter(db, "/healthz")
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(1 << 20),
		RequestID,
		rl.Middleware,
	}, rl
}

func withLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}
