package middleware

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
	"github.com/noah-isme/seat-enrollment-api/pkg/response"
)

// SubmitLimiter throttles enrollment submissions with one token bucket per
// student. Idle buckets are evicted by Cleanup.
type SubmitLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewSubmitLimiter builds a limiter allowing rps sustained and burst
// immediate submissions per student.
func NewSubmitLimiter(rps float64, burst int, idleTTL time.Duration) *SubmitLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idleTTL <= 0 {
		idleTTL = 15 * time.Minute
	}
	return &SubmitLimiter{
		entries: make(map[string]*limiterEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

func (l *SubmitLimiter) limiter(key string) *rate.Limiter {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if ent, ok := l.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.entries[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops buckets unused for longer than the idle TTL.
func (l *SubmitLimiter) Cleanup() int {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx ends.
func (l *SubmitLimiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// Middleware rejects submissions over budget with 429 and Retry-After.
// Requests without claims pass through to the auth checks.
func (l *SubmitLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			c.Next()
			return
		}
		reservation := l.limiter(claims.UserID).ReserveN(l.now(), 1)
		if !reservation.OK() {
			response.Error(c, appErrors.ErrTooManyRequests)
			c.Abort()
			return
		}
		if delay := reservation.DelayFrom(l.now()); delay > 0 {
			reservation.CancelAt(l.now())
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			response.Error(c, appErrors.Clone(appErrors.ErrTooManyRequests, "too many enrollment attempts, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
