// Package server is spec.md §6's wire layer: the HTTP surface that parses
// a GraphQL or JSON-RPC request, drives one request's transaction through
// package subsystem's SystemRouter, and writes back a wire-format
// response.
//
// Grounded in taibuivan-yomira/src/internal/api/server.go (the chi router
// + middleware chain + Server lifecycle shape) and .../platform/
// middleware/middleware.go (request ID, structured slog logging, rate
// limiting, panic recovery, CORS), adapted from a REST JSON-body API to a
// single-endpoint GraphQL/JSON-RPC one.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/exo-run/exoquery/config"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyLogger
)

// requestID attaches a correlation id to every request, generating one
// when the client didn't already supply X-Request-ID.
func requestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id := req.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := withRequestID(req.Context(), id)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// structuredLogger logs one line per request (method, path, status,
// latency), matching the teacher's StructuredLogger shape.
func structuredLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			rid, _ := req.Context().Value(ctxKeyRequestID).(string)
			reqLog := log.With(
				slog.String("request_id", rid),
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("ip", realIP(req)),
			)

			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, req.WithContext(withLogger(req.Context(), reqLog)))

			level := slog.LevelInfo
			if wrapped.status >= 500 {
				level = slog.LevelError
			} else if wrapped.status >= 400 {
				level = slog.LevelWarn
			}
			reqLog.Log(req.Context(), level, "graphql_request_finished",
				slog.Int("status", wrapped.status),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

// panicRecovery recovers a handler panic, logs the stack, and returns a
// sanitized 500 — matching exoquery.NewInternalError's "never leak
// internal detail" contract at the transport boundary too.
func panicRecovery(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					buf := make([]byte, 2048)
					n := runtime.Stack(buf, false)
					loggerFromContext(req.Context(), log).ErrorContext(req.Context(), "panic_recovered",
						slog.Any("error", rec),
						slog.String("stack", string(buf[:n])),
					)
					writeJSONError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, req)
		})
	}
}

type rateLimitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimit is a per-IP token bucket, cleaned up on an interval — same
// shape as the teacher's RateLimit, parameterized instead of global.
func rateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	var mu sync.Mutex
	clients := map[string]*rateLimitEntry{}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			for ip, c := range clients {
				if time.Since(c.lastSeen) > 10*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ip := realIP(req)

			mu.Lock()
			c, found := clients[ip]
			if !found {
				c = &rateLimitEntry{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
				clients[ip] = c
			}
			c.lastSeen = time.Now()
			allowed := c.limiter.Allow()
			mu.Unlock()

			if !allowed {
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// cors applies spec.md §6's EXO_CORS_DOMAINS policy: no Origin header is a
// no-op, an allowed origin gets the standard response headers, a
// preflight OPTIONS short-circuits with 204.
func cors(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			origin := req.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.CORSOrigins()) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Max-Age", "300")
			}
			if req.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	if allowed == nil {
		// nil from Config.CORSOrigins means EXO_CORS_DOMAINS was unset;
		// the wildcard case ([]string{"*"}) is handled below instead.
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func realIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, _ := net.SplitHostPort(req.RemoteAddr)
	return host
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func withLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, log)
}

// loggerFromContext returns the per-request logger structuredLogger
// attached, falling back to base when the middleware chain didn't run
// (e.g. a panic before structuredLogger's defer was registered).
func loggerFromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if log, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok {
		return log
	}
	return base
}
