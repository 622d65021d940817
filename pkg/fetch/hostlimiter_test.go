package fetch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hanamal24/site-sync/pkg/utils"
)

func newTestLimiter(limit int, acquireTimeout time.Duration) *HostLimiter {
	return NewHostLimiter(limit, acquireTimeout, testLogger())
}

func TestHostLimiter_AcquireRelease_Basic(t *testing.T) {
	l := newTestLimiter(2, 0)

	if err := l.Acquire(context.Background(), "host-a"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := l.Acquire(context.Background(), "host-a"); err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}

	// Third should fail (all 2 slots held)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, "host-a"); err == nil {
		t.Fatal("expected third acquire to fail, but it succeeded")
	}

	l.Release("host-a")
	if err := l.Acquire(context.Background(), "host-a"); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}

	l.Release("host-a")
	l.Release("host-a")
}

func TestHostLimiter_AcquireTimeout(t *testing.T) {
	l := newTestLimiter(1, 30*time.Millisecond)

	if err := l.Acquire(context.Background(), "cdn"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer l.Release("cdn")

	err := l.Acquire(context.Background(), "cdn")
	if !errors.Is(err, utils.ErrSemaphoreTimeout) {
		t.Fatalf("expected ErrSemaphoreTimeout, got %v", err)
	}
	if got := utils.CategorizeError(err); got != "Resource_SemaphoreTimeout" {
		t.Errorf("category = %q, want Resource_SemaphoreTimeout", got)
	}
}

func TestHostLimiter_ParentCancelNotTimeout(t *testing.T) {
	l := newTestLimiter(1, time.Minute)
	if err := l.Acquire(context.Background(), "cdn"); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer l.Release("cdn")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx, "cdn")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHostLimiter_MultipleHosts(t *testing.T) {
	l := newTestLimiter(1, 0)

	if err := l.Acquire(context.Background(), "host-a"); err != nil {
		t.Fatalf("host-a acquire failed: %v", err)
	}
	if err := l.Acquire(context.Background(), "host-b"); err != nil {
		t.Fatalf("host-b acquire failed: %v", err)
	}
	if l.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", l.Len())
	}
	l.Release("host-a")
	l.Release("host-b")
}

func TestHostLimiter_ConcurrencyCap(t *testing.T) {
	l := newTestLimiter(3, 0)

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background(), "cdn"); err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			l.Release("cdn")
		}()
	}
	wg.Wait()

	if got := maxActive.Load(); got > 3 {
		t.Errorf("observed %d concurrent holders, limit is 3", got)
	}
}

func TestHostLimiter_EvictIdle(t *testing.T) {
	l := newTestLimiter(1, 0)

	if err := l.Acquire(context.Background(), "idle"); err != nil {
		t.Fatal(err)
	}
	l.Release("idle")
	if err := l.Acquire(context.Background(), "busy"); err != nil {
		t.Fatal(err)
	}
	defer l.Release("busy")

	time.Sleep(10 * time.Millisecond)
	l.evictIdle(5 * time.Millisecond)

	if l.Len() != 1 {
		t.Errorf("expected only busy host to remain, got %d entries", l.Len())
	}
}

func TestHostLimiter_ReleaseUnknownHost(t *testing.T) {
	l := newTestLimiter(1, 0)
	l.Release("never-acquired") // must not panic
}
