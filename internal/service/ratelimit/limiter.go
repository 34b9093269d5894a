package ratelimit

import (
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

type Config struct {
	Enabled bool    `yaml:"enabled" default:"true"`
	Burst   int     `yaml:"burst" default:"5" validate:"min=1"`
	PerSec  float64 `yaml:"per_sec" default:"2" validate:"gt=0"`
	MaxKeys int     `yaml:"max_keys" default:"10000" validate:"min=1"`
}

// Limiter is a token bucket per client key. The least recently seen keys
// are evicted once MaxKeys is reached.
type Limiter struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

func New(cfg Config) (*Limiter, error) {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	c, err := lru.New[string, *rate.Limiter](cfg.MaxKeys)
	if err != nil {
		return nil, err
	}
	return &Limiter{buckets: c, limit: rate.Limit(cfg.PerSec), burst: cfg.Burst}, nil
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(key, b)
	}
	l.mu.Unlock()
	return b.Allow()
}

// Middleware rejects requests over the per-client budget with 429.
// Clients are keyed by real IP and route.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP() + ":" + c.Path()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limited")
			}
			return next(c)
		}
	}
}
