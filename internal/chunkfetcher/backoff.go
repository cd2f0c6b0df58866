package chunkfetcher

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// fixedDoublingBackOff reproduces spec.md §4.3's literal schedule
// (2,4,8,16,32,64s) for network-class retries. backoff.ExponentialBackOff
// applies jitter and a configurable multiplier that doesn't land on these
// exact values, so Fetch's retry loop takes its delays from this small
// adapter's NextBackOff instead.
type fixedDoublingBackOff struct {
	attempt int
	max     int
	base    time.Duration
}

func newFixedDoublingBackOff(maxAttempts int, base time.Duration) *fixedDoublingBackOff {
	return &fixedDoublingBackOff{max: maxAttempts, base: base}
}

func (b *fixedDoublingBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt > b.max {
		return backoff.Stop
	}
	delay := b.base
	for i := 1; i < b.attempt; i++ {
		delay *= 2
	}
	return delay
}

func (b *fixedDoublingBackOff) Reset() {
	b.attempt = 0
}

var _ backoff.BackOff = (*fixedDoublingBackOff)(nil)
