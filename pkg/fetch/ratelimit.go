package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter spaces requests to each host by a minimum interval.
// Callers reserve the next free slot under the lock and sleep outside it,
// so concurrent callers for the same host queue up instead of bursting.
type RateLimiter struct {
	nextSlot     map[string]time.Time // host -> earliest start of the next request
	mu           sync.Mutex
	defaultDelay time.Duration
	log          *logrus.Entry
}

// NewRateLimiter creates a RateLimiter
func NewRateLimiter(defaultDelay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		nextSlot:     make(map[string]time.Time),
		defaultDelay: defaultDelay,
		log:          log,
	}
}

// NewRateLimiterPerSecond returns a limiter allowing rps requests per second per host
func NewRateLimiterPerSecond(rps int, log *logrus.Entry) *RateLimiter {
	var delay time.Duration
	if rps > 0 {
		delay = time.Second / time.Duration(rps)
	}
	return NewRateLimiter(delay, log)
}

// Wait blocks until the caller may send a request to host. A minDelay <= 0
// uses the limiter default. Jitter of up to +10% is added to the wait to
// desynchronize callers. Returns ctx.Err() if ctx ends first; the reserved
// slot is not given back.
func (rl *RateLimiter) Wait(ctx context.Context, host string, minDelay time.Duration) error {
	if minDelay <= 0 {
		minDelay = rl.defaultDelay
	}
	if minDelay <= 0 {
		return ctx.Err()
	}

	now := time.Now()
	rl.mu.Lock()
	start := rl.nextSlot[host]
	if start.Before(now) {
		start = now
	}
	rl.nextSlot[host] = start.Add(minDelay)
	rl.mu.Unlock()

	sleep := start.Sub(now)
	if sleep <= 0 {
		return ctx.Err()
	}
	if jitterRange := int64(sleep) / 10; jitterRange > 0 {
		sleep += time.Duration(rand.Int63n(jitterRange))
	}

	rl.log.WithFields(logrus.Fields{"host": host, "sleep": sleep, "required_delay": minDelay}).Debug("Rate limit applying sleep")
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
