package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Gate is an in-process eligibility gate: each identity may pass Limit times per Window.
// Idle identities are evicted from the cache after two windows.
type Gate struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

// NewGate builds a Gate. cacheSize bounds the number of tracked identities.
func NewGate(limit int, window time.Duration, cacheSize int) *Gate {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	if cacheSize <= 0 {
		cacheSize = 10_000
	}
	return &Gate{
		limiters: expirable.NewLRU[string, *rate.Limiter](cacheSize, nil, 2*window),
		rate:     rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		now:      time.Now,
	}
}

// Check consumes one token for identityID and reports whether the identity may proceed.
func (g *Gate) Check(_ context.Context, identityID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	limiter, ok := g.limiters.Get(identityID)
	if !ok {
		limiter = rate.NewLimiter(g.rate, g.burst)
		g.limiters.Add(identityID, limiter)
	}
	return limiter.AllowN(g.now(), 1), nil
}

// Tracked returns how many identities currently hold a limiter.
func (g *Gate) Tracked() int {
	return g.limiters.Len()
}
