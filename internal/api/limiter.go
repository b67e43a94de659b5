package api

import (
	"sync"

	"hutkeeper/internal/config"

	"golang.org/x/time/rate"
)

type rateLimiter struct {
	limiters sync.Map
	cfg      config.RateLimitConfig
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		cfg: cfg,
	}
}

func (l *rateLimiter) allow(key string) bool {
	if l.cfg.RPS <= 0 {
		return true
	}
	return l.getLimiter(key).Allow()
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
