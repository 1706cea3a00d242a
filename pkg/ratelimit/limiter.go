// Package ratelimit implements per-key token buckets across three tiers and an
// escalating per-IP lockout for repeated authentication failures.
//
// All state is partitioned by key: buckets by {tier, identity} and lockout
// entries by IP. No lock spans more than one key.
package ratelimit

import (
	"sync"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/clock"
)

// Limiter owns every bucket and throttle entry.
type Limiter struct {
	cfg   Config
	clock clock.Clock

	buckets   sync.Map // BucketKey -> *TokenBucket
	throttles sync.Map // ip -> *throttleEntry
}

// New returns a Limiter. A nil clock uses the system clock.
func New(cfg Config, c clock.Clock) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{cfg: cfg, clock: clock.OrReal(c)}, nil
}

func (l *Limiter) Config() Config { return l.cfg }

// Resolve returns the bucket for {tier, identity}, creating it full on first
// access. Concurrent first access yields the same bucket.
func (l *Limiter) Resolve(tier Tier, identity string) *TokenBucket {
	key := BucketKey{Tier: tier, Identity: identity}
	now := l.clock.Now()

	for {
		if v, ok := l.buckets.Load(key); ok {
			b := v.(*TokenBucket)
			if b.touch(now) {
				return b
			}
			l.buckets.CompareAndDelete(key, b)
			continue
		}

		fresh := newBucket(key, l.cfg.tier(tier), now)
		v, loaded := l.buckets.LoadOrStore(key, fresh)
		if !loaded {
			return fresh
		}
		b := v.(*TokenBucket)
		if b.touch(now) {
			return b
		}
		l.buckets.CompareAndDelete(key, b)
	}
}

// Consume refills bucket to the current time and deducts cost. It returns the
// remaining whole tokens, or Denied without altering the bucket.
func (l *Limiter) Consume(bucket *TokenBucket, cost int) int {
	return bucket.consume(l.clock.Now(), cost)
}

// RetryAfter estimates when bucket can next cover cost.
func (l *Limiter) RetryAfter(bucket *TokenBucket, cost int) time.Duration {
	return bucket.RetryAfter(l.clock.Now(), cost)
}

// Cost is the charge for one request from ip against tier. On the auth tier
// it grows with the recent failure count, capped at MaxCost.
func (l *Limiter) Cost(tier Tier, ip string) int {
	if tier != TierAuth {
		return 1
	}
	return min(l.FailureCount(ip)+1, l.cfg.MaxCost)
}

// entry returns the live entry for ip with its lock held.
func (l *Limiter) entry(ip string, create bool) *throttleEntry {
	for {
		var e *throttleEntry
		if v, ok := l.throttles.Load(ip); ok {
			e = v.(*throttleEntry)
		} else if create {
			v, _ := l.throttles.LoadOrStore(ip, &throttleEntry{})
			e = v.(*throttleEntry)
		} else {
			return nil
		}

		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
		l.throttles.CompareAndDelete(ip, e)
	}
}

// drop removes e while its lock is held by the caller.
func (l *Limiter) drop(ip string, e *throttleEntry) {
	e.removed = true
	l.throttles.CompareAndDelete(ip, e)
}

// RecordFailure counts one authentication failure for ip. Reaching the
// threshold starts a lockout. It reports whether ip is now locked out.
func (l *Limiter) RecordFailure(ip string) bool {
	now := l.clock.Now()
	e := l.entry(ip, true)
	defer e.mu.Unlock()

	if e.elapsed(now) {
		e.failures = 0
		e.throttledUntil = time.Time{}
	}
	if e.failures > 0 && e.stale(now, l.cfg.FailureWindow) {
		e.failures = 0
	}

	e.failures++
	e.lastFailure = now
	if e.failures >= l.cfg.FailureThreshold && !e.active(now) {
		e.throttledUntil = now.Add(l.cfg.BlockDuration)
	}
	return e.active(now)
}

// RecordSuccess forgives prior failures for ip. An active lockout stays.
func (l *Limiter) RecordSuccess(ip string) {
	now := l.clock.Now()
	e := l.entry(ip, false)
	if e == nil {
		return
	}
	defer e.mu.Unlock()

	if e.active(now) {
		e.failures = 0
		return
	}
	l.drop(ip, e)
}

// IsThrottled reports whether ip is locked out and for how much longer. An
// elapsed lockout is cleared as a side effect.
func (l *Limiter) IsThrottled(ip string) (bool, time.Duration) {
	now := l.clock.Now()
	e := l.entry(ip, false)
	if e == nil {
		return false, 0
	}
	defer e.mu.Unlock()

	if e.active(now) {
		return true, e.throttledUntil.Sub(now)
	}
	if e.elapsed(now) {
		l.drop(ip, e)
	}
	return false, 0
}

// FailureCount is the number of recent failures recorded for ip.
func (l *Limiter) FailureCount(ip string) int {
	now := l.clock.Now()
	e := l.entry(ip, false)
	if e == nil {
		return 0
	}
	defer e.mu.Unlock()

	if e.elapsed(now) || e.stale(now, l.cfg.FailureWindow) {
		return 0
	}
	return e.failures
}

// SweepStats counts what a Sweep removed.
type SweepStats struct {
	Buckets   int
	Throttles int
}

// Sweep evicts idle buckets, elapsed lockouts and stale failure counters.
func (l *Limiter) Sweep() SweepStats {
	now := l.clock.Now()
	var stats SweepStats

	if l.cfg.IdleTTL > 0 {
		l.buckets.Range(func(k, v any) bool {
			b := v.(*TokenBucket)
			if b.evictIfIdle(now, l.cfg.IdleTTL) {
				l.buckets.CompareAndDelete(k, b)
				stats.Buckets++
			}
			return true
		})
	}

	l.throttles.Range(func(k, v any) bool {
		e := v.(*throttleEntry)
		e.mu.Lock()
		if !e.removed && (e.elapsed(now) || e.stale(now, l.cfg.FailureWindow)) {
			l.drop(k.(string), e)
			stats.Throttles++
		}
		e.mu.Unlock()
		return true
	})

	return stats
}

// Len reports the number of live buckets and throttle entries.
func (l *Limiter) Len() (buckets, throttles int) {
	l.buckets.Range(func(_, _ any) bool { buckets++; return true })
	l.throttles.Range(func(_, _ any) bool { throttles++; return true })
	return buckets, throttles
}
