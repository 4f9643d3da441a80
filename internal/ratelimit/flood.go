package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// FloodLimiter keeps one token bucket per key.
type FloodLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
}

// NewFloodLimiter allows perSecond events per key with the given burst.
func NewFloodLimiter(perSecond float64, burst int) *FloodLimiter {
	if burst < 1 {
		burst = 1
	}
	return &FloodLimiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    rate.Limit(perSecond),
		burst:   burst,
	}
}

// Allow reports whether key may send one more event now.
func (f *FloodLimiter) Allow(key string) bool {
	f.mu.Lock()
	b, ok := f.buckets[key]
	if !ok {
		b = rate.NewLimiter(f.rate, f.burst)
		f.buckets[key] = b
	}
	f.mu.Unlock()
	return b.Allow()
}

// Forget drops the bucket for key.
func (f *FloodLimiter) Forget(key string) {
	f.mu.Lock()
	delete(f.buckets, key)
	f.mu.Unlock()
}

// Len returns the number of tracked keys.
func (f *FloodLimiter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buckets)
}
