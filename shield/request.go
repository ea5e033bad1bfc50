package shield

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/domsense/idgen"
	"github.com/hazyhaar/domsense/kit"
)

// RequestHeader carries the request ID in both directions.
const RequestHeader = "X-Request-ID"

var requestIDs = idgen.Prefixed("req_", idgen.Default)

// RequestID tags each request with an ID (the client's X-Request-ID when
// given), stores it under kit.RequestIDKey with transport "http", and
// attaches a per-request logger.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestHeader)
			if id == "" || len(id) > 128 {
				id = requestIDs()
			}
			w.Header().Set(RequestHeader, id)

			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")
			reqLogger := logger.With("request_id", id, "method", r.Method, "path", r.URL.Path)
			ctx = context.WithValue(ctx, LoggerKey, reqLogger)

			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))
			reqLogger.Debug("shield: request served", "duration", time.Since(start))
		})
	}
}

// Recover answers 500 when a handler panics and logs the panic.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error("shield: handler panic", "path", r.URL.Path, "panic", v)
					http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
