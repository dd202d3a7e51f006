package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	authmw "github.com/hivelearn/relay/internal/auth/middleware"
	"github.com/hivelearn/relay/internal/metrics"
)

// Policy defines a simple fixed-window rate limit: Limit requests within
// Window per derived key. This is burst protection in front of the
// admission controller; the quota ledger still owns the real budget.
type Policy struct {
	// Name is a short identifier for the limited endpoint, used for logging/metrics (e.g. "jobs:submit").
	Name   string
	Window time.Duration
	Limit  int
	// Key builds the bucket key for this request.
	Key func(echo.Context) string
}

// Store abstracts a shared counter store (e.g., Redis) for fixed-window limiting.
type Store interface {
	// Allow increments the counter for the key in the given window and returns whether the request is allowed.
	// If not allowed, retryAfterSec indicates seconds until the window resets.
	Allow(ctx echo.Context, key string, limit int, window time.Duration) (allowed bool, retryAfterSec int, err error)
}

// MiddlewareWithStore enforces the Policy using a shared Store so the limit
// holds across API instances. Store errors fail open: dropping submissions
// because the counter store blipped would be worse than a short burst.
func MiddlewareWithStore(p Policy, s Store) echo.MiddlewareFunc {
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	if p.Limit <= 0 {
		p.Limit = 60
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "global"
			if p.Key != nil {
				key = p.Key(c)
			}
			allowed, retryAfter, err := s.Allow(c, key, p.Limit, p.Window)
			if err != nil || allowed {
				return next(c)
			}
			src := "ip"
			if strings.Contains(key, ":ten:") {
				src = "tenant"
			}
			metrics.IncRateLimitExceeded(p.Name, src)
			c.Logger().Warnf("rate limit exceeded: endpoint=%s key=%s limit=%d window=%s retry_after=%ds", p.Name, key, p.Limit, p.Window.String(), retryAfter)
			if retryAfter > 0 {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			}
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		}
	}
}

// KeyTenantOrIP keys the bucket on the authenticated tenant, falling back
// to the request's real IP for unauthenticated paths. Prefix allows
// per-endpoint separation.
func KeyTenantOrIP(prefix string) func(echo.Context) string {
	return func(c echo.Context) string {
		if tid, ok := authmw.TenantID(c); ok {
			return prefix + ":ten:" + tid.String()
		}
		return prefix + ":ip:" + c.RealIP()
	}
}
