package llm

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
)

// RateLimiterConfig is spec.md section 4.G's per-user sliding window
// shape.
type RateLimiterConfig struct {
	RequestsPerMinute int
	WindowSeconds     int
}

// RateLimiter enforces RateLimiterConfig per user, grounded on the
// pack's token-bucket wrapper around golang.org/x/time/rate (each user
// gets an independent *rate.Limiter sized to the configured window
// rather than one shared global limiter).
type RateLimiter struct {
	cfg RateLimiterConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	return &RateLimiter{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

func (r *RateLimiter) limiterFor(user string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[user]
	if !ok {
		window := time.Duration(r.cfg.WindowSeconds) * time.Second
		every := rate.Every(window / time.Duration(max(r.cfg.RequestsPerMinute, 1)))
		l = rate.NewLimiter(every, r.cfg.RequestsPerMinute)
		r.limiters[user] = l
	}
	return l
}

// Allow reports whether user may make one more request right now. On
// rejection it returns a KindRateLimit error carrying the time the
// window is expected to admit the next request.
func (r *RateLimiter) Allow(user string) error {
	l := r.limiterFor(user)
	reservation := l.ReserveN(time.Now(), 1)
	if !reservation.OK() {
		return mcperr.New(mcperr.KindRateLimit, "rate limiter misconfigured", nil)
	}
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return mcperr.RateLimited("rate limit exceeded", time.Now().Add(delay))
	}
	return nil
}
