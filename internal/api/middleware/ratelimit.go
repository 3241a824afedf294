package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/examwatch/examwatch/internal/observability/metrics"
)

// RateLimiterStore keeps one token bucket per client. Buckets idle for
// longer than the expiry are dropped by go-cache's janitor.
type RateLimiterStore struct {
	limit   rate.Limit
	burst   int
	buckets *cache.Cache
}

// NewRateLimiterStore creates a store allowing rps sustained requests per
// second with the given burst per client.
func NewRateLimiterStore(rps float64, burst int, expiry time.Duration) *RateLimiterStore {
	return &RateLimiterStore{
		limit:   rate.Limit(rps),
		burst:   max(burst, 1),
		buckets: cache.New(expiry, expiry),
	}
}

// Allow implements middleware.RateLimiterStore.
func (s *RateLimiterStore) Allow(identifier string) (bool, error) {
	if l, ok := s.buckets.Get(identifier); ok {
		s.buckets.SetDefault(identifier, l)
		return l.(*rate.Limiter).Allow(), nil
	}
	l := rate.NewLimiter(s.limit, s.burst)
	// Add loses when another request created the bucket first.
	if err := s.buckets.Add(identifier, l, cache.DefaultExpiration); err != nil {
		if existing, ok := s.buckets.Get(identifier); ok {
			l = existing.(*rate.Limiter)
		}
	}
	return l.Allow(), nil
}

// NewRateLimiter throttles a route per client IP.
func NewRateLimiter(store middleware.RateLimiterStore, m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			if m != nil {
				m.RecordRateLimited(c.Path())
			}
			return c.JSON(http.StatusTooManyRequests, map[string]any{
				"success": false,
				"error":   "too many requests, slow down",
			})
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]any{
				"success": false,
				"error":   "could not identify client",
			})
		},
	})
}
