// CLAUDE:SUMMARY HTTP middleware for the domtrack status API: HEAD handling, security headers, body limits, request IDs and panic recovery.
// Package shield provides the HTTP middleware stack in front of the
// domtrack status API.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// MaxBody is the request body limit of the default stack.
const MaxBody = 10 << 20

// Stack returns the default middleware, outermost first:
// Recover, HeadToGet, SecurityHeaders, MaxBodySize, RequestID.
func Stack(logger *slog.Logger) []func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return []func(http.Handler) http.Handler{
		Recover(logger),
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBodySize(MaxBody),
		RequestID(logger),
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
