// Package ratelimit paces byte streams with a token bucket. One token is
// one byte.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a token bucket that lets callers borrow against future refills.
// A reservation is booked under the lock and slept off outside it, so
// concurrent readers share the rate in arrival order. A nil *Bucket never
// blocks.
type Bucket struct {
	rate  float64 // tokens per second
	burst float64
	now   func() time.Time

	mu    sync.Mutex
	level float64 // may go negative while reservations are outstanding
	stamp time.Time
}

// New returns a full bucket refilling at rate tokens per second and holding
// at most burst tokens.
func New(rate, burst float64) *Bucket {
	return newWithClock(rate, burst, time.Now)
}

func newWithClock(rate, burst float64, now func() time.Time) *Bucket {
	return &Bucket{rate: rate, burst: burst, now: now, level: burst, stamp: now()}
}

// NewBandwidthLimiter returns a bucket for kbps kilobytes per second with a
// quarter second of burst, or nil when kbps <= 0.
func NewBandwidthLimiter(kbps int) *Bucket {
	if kbps <= 0 {
		return nil
	}
	rate := float64(kbps) * 1024
	return New(rate, rate/4)
}

// Available returns the tokens that could be taken right now.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	if b.level < 0 {
		return 0
	}
	return b.level
}

// WaitN takes n tokens, sleeping for as long as the bucket is in debt. If
// ctx ends first the reservation is returned and ctx's error reported.
func (b *Bucket) WaitN(ctx context.Context, n int) error {
	if b == nil || n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	delay := b.reserve(float64(n))
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		b.refund(float64(n))
		return ctx.Err()
	}
}

func (b *Bucket) reserve(n float64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	b.level -= n
	if b.level >= 0 {
		return 0
	}
	return time.Duration(-b.level / b.rate * float64(time.Second))
}

func (b *Bucket) refund(n float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	b.level += n
	if b.level > b.burst {
		b.level = b.burst
	}
}

// advance credits the time since the last update. Caller holds mu.
func (b *Bucket) advance() {
	now := b.now()
	if elapsed := now.Sub(b.stamp); elapsed > 0 {
		b.level += elapsed.Seconds() * b.rate
		if b.level > b.burst {
			b.level = b.burst
		}
	}
	b.stamp = now
}
