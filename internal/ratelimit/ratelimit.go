// Package ratelimit throttles write requests per client.
package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Limiter decides whether one more request for key fits in the budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Middleware limits POST, PUT and DELETE requests by client IP. Reads are
// never throttled. Limiter errors let the request through.
func Middleware(limiter Limiter, perMinute int, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isWrite(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			key := ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.WithError(err).WithField("key", key).Warn("rate limiter unavailable, allowing request")
				w.Header().Set("X-RateLimit-Error", "true")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				log.WithFields(logrus.Fields{"key": key, "method": r.Method, "path": r.URL.Path}).Info("rate limit exceeded")
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
				w.Header().Set("Retry-After", "60")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":  "RATE_LIMITED",
					"error": "Rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// ClientIP prefers the first X-Forwarded-For hop and falls back to the peer
// address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
