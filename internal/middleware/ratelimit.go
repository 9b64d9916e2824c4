package middleware

import (
	"sync"
	"time"

	"license-server/internal/config"
	"license-server/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per client key. Buckets idle for longer
// than the cleanup interval are dropped.
type Limiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	rps      rate.Limit
	burst    int
	idle     time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewLimiter(cfg config.RateConfig) *Limiter {
	l := &Limiter{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		idle:    5 * time.Minute,
		stop:    make(chan struct{}),
	}
	if cfg.RPS <= 0 {
		l.rps = rate.Inf
	}
	if l.burst < 1 {
		l.burst = 1
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether key may make a request now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = cl
	}
	cl.lastAccess = time.Now()
	l.mu.Unlock()
	return cl.limiter.Allow()
}

// Stop ends the cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.cleanup(time.Now())
		}
	}
}

func (l *Limiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, cl := range l.clients {
		if now.Sub(cl.lastAccess) > l.idle {
			delete(l.clients, key)
		}
	}
}

// RateLimit rejects requests from a client IP that exceeds its bucket.
func RateLimit(l *Limiter, m *metrics.Metrics, route string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(c.IP()) {
			m.RecordRateLimitHit(route)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
