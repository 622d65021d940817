package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/hanamal24/site-sync/pkg/utils"
)

// hostEntry tracks a single host's semaphore and its usage state.
type hostEntry struct {
	sem         *semaphore.Weighted
	activeCount int64     // number of held + waiting permits
	lastRelease time.Time // zero if never released
}

// HostLimiter caps concurrent requests per host. Image URLs from the records
// API mostly share one CDN host, so this bounds the real fan-out of a sync.
type HostLimiter struct {
	entries        map[string]*hostEntry
	mu             sync.Mutex
	limit          int64
	acquireTimeout time.Duration
	log            *logrus.Entry
}

// NewHostLimiter creates a limiter with maxPerHost permits per host. A
// positive acquireTimeout bounds how long Acquire waits for a permit.
func NewHostLimiter(maxPerHost int, acquireTimeout time.Duration, log *logrus.Entry) *HostLimiter {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 4
		log.Warnf("max_requests_per_host invalid or zero, defaulting to %d", limit)
	}
	return &HostLimiter{
		entries:        make(map[string]*hostEntry),
		limit:          limit,
		acquireTimeout: acquireTimeout,
		log:            log,
	}
}

// Acquire takes one permit for host, blocking until one is free, the acquire
// timeout passes (utils.ErrSemaphoreTimeout) or ctx is done.
func (l *HostLimiter) Acquire(ctx context.Context, host string) error {
	l.mu.Lock()
	entry, exists := l.entries[host]
	if !exists {
		entry = &hostEntry{sem: semaphore.NewWeighted(l.limit)}
		l.entries[host] = entry
		l.log.WithFields(logrus.Fields{"host": host, "limit": l.limit}).Debug("Created new host semaphore")
	}
	entry.activeCount++
	l.mu.Unlock()

	acquireCtx := ctx
	if l.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.acquireTimeout)
		defer cancel()
	}

	if err := entry.sem.Acquire(acquireCtx, 1); err != nil {
		l.mu.Lock()
		entry.activeCount--
		l.mu.Unlock()
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: host %s after %v", utils.ErrSemaphoreTimeout, host, l.acquireTimeout)
		}
		return err
	}
	return nil
}

// Release returns one permit for host.
func (l *HostLimiter) Release(host string) {
	l.mu.Lock()
	entry, exists := l.entries[host]
	if !exists {
		l.mu.Unlock()
		l.log.Errorf("hostlimiter: Release called for unknown host: %s", host)
		return
	}
	entry.activeCount--
	entry.lastRelease = time.Now()
	l.mu.Unlock()

	entry.sem.Release(1)
}

// RunEviction periodically removes idle host entries until ctx is done.
// Only long-running processes (watch, serve) need it.
func (l *HostLimiter) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evictIdle(interval)
		case <-ctx.Done():
			return
		}
	}
}

// evictIdle removes entries that have been idle longer than maxIdle.
func (l *HostLimiter) evictIdle(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	evicted := 0
	for host, entry := range l.entries {
		if entry.activeCount == 0 && !entry.lastRelease.IsZero() && now.Sub(entry.lastRelease) >= maxIdle {
			delete(l.entries, host)
			evicted++
		}
	}
	if evicted > 0 {
		l.log.Debugf("Evicted %d idle host semaphores, %d remain", evicted, len(l.entries))
	}
}

// Len returns the current number of tracked hosts.
func (l *HostLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
