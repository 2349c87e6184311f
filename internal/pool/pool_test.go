package pool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchfeed/harvester/internal/pool"
)

// fakePage counts resets and closes.
type fakePage struct {
	id       int
	resetErr error
	resets   atomic.Int32
	closed   atomic.Bool
}

func (f *fakePage) Reset(context.Context) error {
	f.resets.Add(1)
	return f.resetErr
}

func (f *fakePage) Close() error {
	f.closed.Store(true)
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	pool  *pool.Pool[*fakePage]
	clock *clock
	made  []*fakePage
	mu    sync.Mutex
	fail  atomic.Bool
}

func newHarness(t *testing.T, maxPages int) *harness {
	t.Helper()
	h := &harness{clock: &clock{now: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)}}
	h.pool = pool.New(func(context.Context) (*fakePage, error) {
		if h.fail.Load() {
			return nil, errors.New("browser crashed")
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		p := &fakePage{id: len(h.made) + 1}
		h.made = append(h.made, p)
		return p, nil
	}, pool.Options{
		MaxPages:      maxPages,
		MaxAge:        time.Minute,
		SweepInterval: time.Hour,
		Now:           h.clock.Now,
	})
	t.Cleanup(h.pool.Close)
	return h
}

// ── Reuse and cap ──────────────────────────────────────────────────────────

func TestPool_ReusesIdleHandle(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	first, err := h.pool.Acquire(ctx)
	require.NoError(t, err)
	h.pool.Release(ctx, first)

	second, err := h.pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, first.Resource(), second.Resource())
	assert.Equal(t, int32(1), first.Resource().resets.Load(), "release must reset the page")

	st := h.pool.Stats()
	assert.Equal(t, uint64(1), st.Created)
	assert.Equal(t, uint64(1), st.Reused)
	assert.InDelta(t, 50.0, st.ReusedPercent, 0.001)
}

func TestPool_NeverExceedsMaxPages(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()

	var peak, current atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.pool.With(ctx, func(*fakePage) error {
				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.LessOrEqual(t, h.pool.Stats().Live, 3)
	assert.LessOrEqual(t, len(h.made), 3)
}

func TestPool_AcquireBlocksAtCapUntilRelease(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	held, err := h.pool.Acquire(ctx)
	require.NoError(t, err)

	got := make(chan *pool.Handle[*fakePage], 1)
	go func() {
		hd, err := h.pool.Acquire(ctx)
		if err == nil {
			got <- hd
		}
	}()

	select {
	case <-got:
		t.Fatal("Acquire must block while the pool is at capacity")
	case <-time.After(30 * time.Millisecond):
	}

	h.pool.Release(ctx, held)
	select {
	case hd := <-got:
		assert.Same(t, held.Resource(), hd.Resource())
	case <-time.After(time.Second):
		t.Fatal("blocked Acquire was not woken by Release")
	}
}

func TestPool_AcquireHonoursContext(t *testing.T) {
	h := newHarness(t, 1)
	_, err := h.pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ── Aging ──────────────────────────────────────────────────────────────────

func TestPool_IdleOlderThanMaxAgeIsNotReused(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	first, err := h.pool.Acquire(ctx)
	require.NoError(t, err)
	h.pool.Release(ctx, first)

	h.clock.Advance(2 * time.Minute)

	second, err := h.pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first.Resource(), second.Resource())
	assert.True(t, first.Resource().closed.Load())
	assert.Equal(t, 1, h.pool.Stats().Live)
}

func TestPool_SweepClosesLeasedHandlesPastTwiceMaxAge(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	leased, err := h.pool.Acquire(ctx)
	require.NoError(t, err)
	idle, err := h.pool.Acquire(ctx)
	require.NoError(t, err)
	h.pool.Release(ctx, idle)

	h.clock.Advance(90 * time.Second)
	assert.Zero(t, h.pool.Sweep(), "nothing is older than 2*MaxAge yet")

	h.clock.Advance(time.Minute)
	assert.Equal(t, 2, h.pool.Sweep())
	assert.True(t, leased.Resource().closed.Load())
	assert.True(t, idle.Resource().closed.Load())
	assert.Zero(t, h.pool.Stats().Live)

	// the holder of a swept handle may still release it safely
	h.pool.Release(ctx, leased)
	assert.Zero(t, h.pool.Stats().Idle)

	fresh, err := h.pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, leased.Resource(), fresh.Resource())
}

// ── Failure paths ──────────────────────────────────────────────────────────

func TestPool_FactoryFailureFreesSlot(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	h.fail.Store(true)
	_, err := h.pool.Acquire(ctx)
	require.ErrorIs(t, err, pool.ErrCreate)
	assert.Contains(t, err.Error(), "browser crashed")
	assert.Zero(t, h.pool.Stats().Live)

	h.fail.Store(false)
	hd, err := h.pool.Acquire(ctx)
	require.NoError(t, err)
	assert.NotNil(t, hd.Resource())
}

func TestPool_ResetFailureDiscardsHandle(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	hd, err := h.pool.Acquire(ctx)
	require.NoError(t, err)
	hd.Resource().resetErr = errors.New("navigation to about:blank failed")
	h.pool.Release(ctx, hd)

	assert.True(t, hd.Resource().closed.Load())
	st := h.pool.Stats()
	assert.Zero(t, st.Live)
	assert.Equal(t, uint64(1), st.Discarded)
}

func TestPool_DoubleReleaseIsNoop(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	hd, err := h.pool.Acquire(ctx)
	require.NoError(t, err)
	h.pool.Release(ctx, hd)
	h.pool.Release(ctx, hd)

	assert.Equal(t, 1, h.pool.Stats().Idle)
	assert.Equal(t, int32(1), hd.Resource().resets.Load())
}

func TestPool_WithReleasesOnErrorAndPanic(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	boom := errors.New("boom")
	err := h.pool.With(ctx, func(*fakePage) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, h.pool.Stats().Idle)

	assert.Panics(t, func() {
		_ = h.pool.With(ctx, func(*fakePage) error { panic("parser bug") })
	})
	assert.Equal(t, 1, h.pool.Stats().Idle)
}

func TestPool_CloseClosesEverythingAndRejectsAcquire(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	leased, err := h.pool.Acquire(ctx)
	require.NoError(t, err)

	h.pool.Close()
	assert.True(t, leased.Resource().closed.Load())

	_, err = h.pool.Acquire(ctx)
	assert.ErrorIs(t, err, pool.ErrClosed)
}
