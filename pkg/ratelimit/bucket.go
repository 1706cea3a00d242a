package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Denied is returned by Consume when the bucket cannot cover the cost.
const Denied = -1

// BucketKey identifies one bucket.
type BucketKey struct {
	Tier     Tier
	Identity string
}

// TokenBucket refills continuously at its tier's rate up to capacity.
// Refill and deduction happen under one lock.
type TokenBucket struct {
	key      BucketKey
	capacity int
	perSec   float64

	mu       sync.Mutex
	lim      *rate.Limiter
	lastSeen time.Time
	removed  bool
}

func newBucket(key BucketKey, cfg TierConfig, now time.Time) *TokenBucket {
	perSec := cfg.RefillPerMinute / 60
	return &TokenBucket{
		key:      key,
		capacity: cfg.Capacity,
		perSec:   perSec,
		lim:      rate.NewLimiter(rate.Limit(perSec), cfg.Capacity),
		lastSeen: now,
	}
}

func (b *TokenBucket) Key() BucketKey { return b.key }
func (b *TokenBucket) Capacity() int  { return b.capacity }

// consume refills to now, then deducts cost if the bucket holds enough.
func (b *TokenBucket) consume(now time.Time, cost int) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeen = now
	if cost <= 0 {
		return b.available(now)
	}
	if !b.lim.AllowN(now, cost) {
		return Denied
	}
	return b.available(now)
}

// Available reports the whole tokens held at now without consuming any.
func (b *TokenBucket) Available(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available(now)
}

func (b *TokenBucket) available(now time.Time) int {
	tokens := b.lim.TokensAt(now)
	switch {
	case tokens < 0:
		return 0
	case tokens > float64(b.capacity):
		return b.capacity
	}
	return int(math.Floor(tokens))
}

// RetryAfter estimates how long until cost tokens are available.
func (b *TokenBucket) RetryAfter(now time.Time, cost int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cost > b.capacity {
		cost = b.capacity
	}
	missing := float64(cost) - b.lim.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / b.perSec * float64(time.Second))
}

func (b *TokenBucket) touch(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removed {
		return false
	}
	b.lastSeen = now
	return true
}

// evictIfIdle marks the bucket removed once it has been idle for ttl.
func (b *TokenBucket) evictIfIdle(now time.Time, ttl time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removed || now.Sub(b.lastSeen) < ttl {
		return false
	}
	b.removed = true
	return true
}
