// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/cavepedia/cavepedia/internal/log"
)

// HeaderCorrelationID carries a caller-supplied id through to the logs.
const HeaderCorrelationID = "X-Correlation-ID"

// CorrelationID tags each request context with the X-Correlation-ID header,
// generating one when absent, and echoes it on the response. The chi request
// id is lifted into the context under the logger's request id key as well.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderCorrelationID, id)

		ctx := log.WithCorrelationID(r.Context(), id)
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			ctx = log.WithRequestID(ctx, reqID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging returns a middleware that logs HTTP requests.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				level := slog.LevelInfo
				if ww.Status() >= http.StatusInternalServerError {
					level = slog.LevelWarn
				}
				logger.Log(r.Context(), level, "request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"remote_addr", r.RemoteAddr,
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
