package ipcserver

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type contextKey int

const requestIDKey contextKey = iota

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware generates or extracts an X-Request-ID so every call
// logged or surfaced through InfoRequest/LogOutput can be correlated back
// to its HTTP request (SPEC_FULL.md §6 "Wire binding (A6)").
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestIDFrom returns the request id stashed by requestIDMiddleware, or
// "" if called outside of it.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// recoveryMiddleware turns a panic into a `500 FATAL`-shaped error body
// instead of crashing the listener (SPEC_FULL.md §6: "Requests ... are
// recovered from panics into a 500 FATAL-shaped error body").
func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						"request_id", requestIDFrom(r.Context()),
						"error", rec,
						"stack", string(debug.Stack()),
						"path", r.URL.Path,
					)
					writeError(w, r, http.StatusInternalServerError, "FATAL", "an internal error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// clientRateLimiter enforces a per-client token-bucket rate limit distinct
// from the SyncML protocol's own timeouts (SPEC_FULL.md §6: "subject to a
// per-client token-bucket rate limit (golang.org/x/time/rate)").
type clientRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newClientRateLimiter(requestsPerSecond float64, burst int) *clientRateLimiter {
	return &clientRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (c *clientRateLimiter) limiterFor(clientID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[clientID]
	if !ok {
		l = rate.NewLimiter(c.r, c.burst)
		c.limiters[clientID] = l
	}
	return l
}

func clientIDFor(r *http.Request) string {
	if id := r.Header.Get("X-Client-ID"); id != "" {
		return id
	}
	return r.RemoteAddr
}

func (c *clientRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.limiterFor(clientIDFor(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware emits one structured line per request, in the same
// shape pkg/logging's other call sites use.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				"request_id", requestIDFrom(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
