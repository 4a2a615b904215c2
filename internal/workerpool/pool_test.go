package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("returns task result", func(t *testing.T) {
		pool := New(2)
		defer pool.Close()

		value, err := pool.Execute(ctx, func(ctx context.Context) (any, error) {
			return 42, nil
		}, 0)

		require.NoError(t, err)
		assert.Equal(t, 42, value)
	})

	t.Run("returns task error", func(t *testing.T) {
		pool := New(2)
		defer pool.Close()

		taskErr := errors.New("boom")
		value, err := pool.Execute(ctx, func(ctx context.Context) (any, error) {
			return nil, taskErr
		}, 0)

		require.ErrorIs(t, err, taskErr)
		assert.Nil(t, value)
	})

	t.Run("rejects after close", func(t *testing.T) {
		pool := New(1)
		pool.Close()

		_, err := pool.Execute(ctx, func(ctx context.Context) (any, error) {
			return nil, nil
		}, 0)

		assert.ErrorIs(t, err, ErrPoolClosed)
	})
}

func TestPool_ExecuteOrder(t *testing.T) {
	ctx := context.Background()

	// A single unit must run queued tasks in submission order.
	pool := New(1)
	defer pool.Close()

	gate := make(chan struct{})
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.Execute(ctx, func(ctx context.Context) (any, error) {
			<-gate
			return nil, nil
		}, 0)
	}()

	// Wait until the blocker occupies the unit so later submissions queue.
	require.Eventually(t, func() bool {
		return pool.Stats().Busy == 1
	}, time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Execute(ctx, func(ctx context.Context) (any, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			}, 0)
		}()
		// Stagger submissions so queue order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}

	close(gate)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestPool_ConcurrencyLimit(t *testing.T) {
	ctx := context.Background()

	pool := New(2)
	defer pool.Close()

	var running, peak int32
	gate := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Execute(ctx, func(ctx context.Context) (any, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				<-gate
				atomic.AddInt32(&running, -1)
				return nil, nil
			}, 0)
		}()
	}

	require.Eventually(t, func() bool {
		return pool.Stats().Busy == 2
	}, time.Second, 5*time.Millisecond)

	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestPool_PanicContainment(t *testing.T) {
	ctx := context.Background()

	pool := New(2)
	defer pool.Close()

	_, err := pool.Execute(ctx, func(ctx context.Context) (any, error) {
		panic("kaboom")
	}, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "task panicked")
	assert.Contains(t, err.Error(), "kaboom")

	// The panicked unit is replaced; capacity is unchanged and the pool
	// still runs tasks.
	require.Eventually(t, func() bool {
		s := pool.Stats()
		return s.Total == 2 && s.Idle == 2
	}, time.Second, 5*time.Millisecond)

	value, err := pool.Execute(ctx, func(ctx context.Context) (any, error) {
		return "ok", nil
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
}

func TestPool_Timeout(t *testing.T) {
	ctx := context.Background()

	pool := New(1)
	defer pool.Close()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := pool.Execute(ctx, func(ctx context.Context) (any, error) {
		<-release
		return "late", nil
	}, 50*time.Millisecond)

	require.ErrorIs(t, err, ErrTaskTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// The stuck unit was abandoned and replaced, so the pool regains its
	// capacity immediately instead of waiting for the stuck task.
	require.Eventually(t, func() bool {
		s := pool.Stats()
		return s.Total == 1 && s.Idle == 1
	}, time.Second, 5*time.Millisecond)

	value, err := pool.Execute(ctx, func(ctx context.Context) (any, error) {
		return "fresh", nil
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "fresh", value)
}

func TestPool_ContextCancellation(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := pool.Execute(ctx, func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}, 0)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_Stats(t *testing.T) {
	ctx := context.Background()

	pool := New(3)
	defer pool.Close()

	s := pool.Stats()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 0, s.Busy)
	assert.Equal(t, 3, s.Idle)

	gate := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Execute(ctx, func(ctx context.Context) (any, error) {
				<-gate
				return nil, nil
			}, 0)
		}()
	}

	require.Eventually(t, func() bool {
		s := pool.Stats()
		return s.Busy == 2 && s.Idle == 1
	}, time.Second, 5*time.Millisecond)

	close(gate)
	wg.Wait()

	require.Eventually(t, func() bool {
		return pool.Stats().Idle == 3
	}, time.Second, 5*time.Millisecond)
}

func TestPool_DefaultSize(t *testing.T) {
	pool := New(0)
	defer pool.Close()

	assert.Greater(t, pool.Stats().Total, 0)
}

func TestPool_Shutdown(t *testing.T) {
	ctx := context.Background()

	t.Run("waits for in-flight tasks", func(t *testing.T) {
		pool := New(2)

		var completed atomic.Bool
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Execute(ctx, func(ctx context.Context) (any, error) {
				time.Sleep(50 * time.Millisecond)
				completed.Store(true)
				return nil, nil
			}, 0)
		}()

		require.Eventually(t, func() bool {
			return pool.Stats().Busy == 1
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, pool.Shutdown(ctx))
		wg.Wait()
		assert.True(t, completed.Load())
	})

	t.Run("gives up when ctx expires", func(t *testing.T) {
		pool := New(1)

		release := make(chan struct{})
		defer close(release)

		go pool.Execute(ctx, func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		}, 0)

		require.Eventually(t, func() bool {
			return pool.Stats().Busy == 1
		}, time.Second, 5*time.Millisecond)

		shutdownCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		err := pool.Shutdown(shutdownCtx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
