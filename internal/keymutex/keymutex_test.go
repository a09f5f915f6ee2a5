package keymutex

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_Uncontended(t *testing.T) {
	m := New()
	release, err := m.Acquire(context.Background(), "tenant-a")
	require.NoError(t, err)
	release()

	// Lock must be free again.
	release2, err := m.Acquire(context.Background(), "tenant-a")
	require.NoError(t, err)
	release2()
}

func TestAcquire_MutualExclusion(t *testing.T) {
	m := New()
	ctx := context.Background()

	var inCritical int32
	var maxInCritical int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(ctx, "tenant-a")
			require.NoError(t, err)
			defer release()

			n := atomic.AddInt32(&inCritical, 1)
			if n > atomic.LoadInt32(&maxInCritical) {
				atomic.StoreInt32(&maxInCritical, n)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inCritical, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInCritical)
}

func TestAcquire_DifferentKeysDoNotBlock(t *testing.T) {
	m := New()
	ctx := context.Background()

	releaseA, err := m.Acquire(ctx, "tenant-a")
	require.NoError(t, err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := m.Acquire(ctx, "tenant-b")
		require.NoError(t, err)
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("acquire on a different key blocked")
	}
}

func TestAcquire_FIFOOrder(t *testing.T) {
	m := New()
	ctx := context.Background()

	release, err := m.Acquire(ctx, "tenant-a")
	require.NoError(t, err)

	const n = 5
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	ready := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Stagger queue entry so arrival order is deterministic.
			ready <- struct{}{}
			r, err := m.Acquire(ctx, "tenant-a")
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			r()
		}(i)
		<-ready
		// Give the goroutine time to enqueue before starting the next.
		time.Sleep(20 * time.Millisecond)
	}

	release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRelease_Idempotent(t *testing.T) {
	m := New()
	ctx := context.Background()

	release, err := m.Acquire(ctx, "tenant-a")
	require.NoError(t, err)

	acquired := make(chan func(), 2)
	go func() {
		r, err := m.Acquire(ctx, "tenant-a")
		require.NoError(t, err)
		acquired <- r
	}()
	go func() {
		r, err := m.Acquire(ctx, "tenant-a")
		require.NoError(t, err)
		acquired <- r
	}()

	time.Sleep(50 * time.Millisecond)

	// Double release must hand the lock to exactly one waiter.
	release()
	release()

	var first func()
	select {
	case first = <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}

	select {
	case <-acquired:
		t.Fatal("double release woke two waiters")
	case <-time.After(100 * time.Millisecond):
	}

	first()
	select {
	case second := <-acquired:
		second()
	case <-time.After(2 * time.Second):
		t.Fatal("second waiter never acquired the lock")
	}
}

func TestAcquire_ContextCanceledWhileQueued(t *testing.T) {
	m := New()

	release, err := m.Acquire(context.Background(), "tenant-a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := m.Acquire(ctx, "tenant-a")
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled acquire did not return")
	}

	// The abandoned waiter must not block later acquisitions.
	release()
	r, err := m.Acquire(context.Background(), "tenant-a")
	require.NoError(t, err)
	r()
}
