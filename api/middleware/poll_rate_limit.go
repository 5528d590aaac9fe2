package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keydrop/keydrop-backend/api/responses"
	pkgerrors "github.com/keydrop/keydrop-backend/pkg/errors"
	"github.com/keydrop/keydrop-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(string) string
}

// PollLimitPolicy throttles status-refresh polling per client and order. A
// deposit settles in seconds at best; there is no reason to poll faster.
type PollLimitPolicy struct {
	window time.Duration
	limit  int
}

// NewPollLimitPolicy builds a policy with the supplied window and limit.
func NewPollLimitPolicy(window time.Duration, limit int) PollLimitPolicy {
	return PollLimitPolicy{window: window, limit: limit}
}

func (p PollLimitPolicy) enabled() bool {
	return p.window > 0 && p.limit > 0
}

// PollRateLimit enforces the refresh budget keyed on client IP plus the
// polled order, so one impatient buyer cannot starve the gateway quota for
// everyone else.
func PollRateLimit(policy PollLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			scope := fmt.Sprintf("poll:%s:%s", clientIP(r), chi.URLParam(r, "orderId"))
			count, err := store.IncrWithTTL(ctx, store.RateLimitKey(scope), policy.window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if count > int64(policy.limit) {
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"attempts":       count,
						"limit":          policy.limit,
						"window_seconds": int(policy.window.Seconds()),
					})
					logg.Warn(logCtx, "poll.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "status polled too frequently"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
