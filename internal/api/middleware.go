package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rafaeljc/vigil/internal/logger"
	"github.com/rafaeljc/vigil/internal/observability"
)

// APIKeyHeader carries the plaintext API key.
const APIKeyHeader = "X-API-Key"

// requestLogger injects a request-scoped logger and logs each completed request,
// at WARN for 4xx and ERROR for 5xx.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())

		reqLogger := a.logger.With(slog.String("request_id", reqID))
		ctx := logger.WithContext(r.Context(), reqLogger)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		reqLogger.LogAttrs(ctx, level, "HTTP request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_ip", r.RemoteAddr),
		)
	})
}

// metricsRecorder labels requests by route pattern, so ids in paths do not
// explode cardinality. Unrouted requests share the "not_found" label.
func metricsRecorder(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "not_found"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "/*") {
				path = strings.TrimSuffix(pattern, "/")
				if path == "" {
					path = "/"
				}
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		observability.APIReqDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		observability.APIReqTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
	})
}

// authenticateAPIKey compares the SHA-256 of X-API-Key with the configured
// hash in constant time.
func (a *API) authenticateAPIKey(next http.Handler) http.Handler {
	if a.cfg.SkipAuth {
		return next
	}

	want, err := hex.DecodeString(a.cfg.APIKeyHash)
	if err != nil || len(want) != sha256.Size {
		panic("api: APIKeyHash must be a hex-encoded SHA-256 digest")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			writeError(w, r, http.StatusUnauthorized, ErrorResponse{Code: "ERR_UNAUTHORIZED", Message: "Missing API key"})
			return
		}

		got := sha256.Sum256([]byte(key))
		if subtle.ConstantTimeCompare(got[:], want) != 1 {
			logger.FromContext(r.Context()).Warn("rejected request with invalid API key")
			writeError(w, r, http.StatusUnauthorized, ErrorResponse{Code: "ERR_UNAUTHORIZED", Message: "Invalid API key"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, a.cfg.MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}
