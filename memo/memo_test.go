package memo_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oss.terrastruct.com/d2render/lib/log"
	"oss.terrastruct.com/d2render/memo"
)

func testCtx(t *testing.T) context.Context {
	return log.WithTB(context.Background(), t, &slogtest.Options{IgnoreErrors: true})
}

func TestDoMemoizes(t *testing.T) {
	t.Parallel()

	ctx := testCtx(t)
	m := memo.New(nil)

	var calls atomic.Int64
	render := func(context.Context) (string, error) {
		calls.Add(1)
		return "<svg></svg>", nil
	}

	v, err := m.Do(ctx, 42, render)
	require.NoError(t, err)
	assert.Equal(t, "<svg></svg>", v)

	v, err = m.Do(ctx, 42, render)
	require.NoError(t, err)
	assert.Equal(t, "<svg></svg>", v)

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, memo.Stats{Hits: 1, Misses: 1, Renders: 1}, m.Stats())

	_, err = m.Do(ctx, 43, render)
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestDoDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	ctx := testCtx(t)
	store := memo.NewMemoryStore()
	m := memo.New(store)

	errBoom := errors.New("boom")
	var calls atomic.Int64
	render := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errBoom
		}
		return "ok", nil
	}

	_, err := m.Do(ctx, 7, render)
	assert.True(t, err == errBoom)
	assert.Equal(t, 0, store.Len())

	v, err := m.Do(ctx, 7, render)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int64(1), m.Stats().Errors)
}

func TestDoSingleFlight(t *testing.T) {
	t.Parallel()

	ctx := testCtx(t)
	m := memo.New(nil)

	release := make(chan struct{})
	var calls atomic.Int64
	render := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const n = 32
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := m.Do(ctx, 99, render)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	assert.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, "shared", v)
	}
	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Renders)
	assert.Equal(t, int64(n), stats.Hits+stats.Misses)
}

func TestDoWaiterCancel(t *testing.T) {
	t.Parallel()

	ctx := testCtx(t)
	m := memo.New(nil)

	release := make(chan struct{})
	started := make(chan struct{})
	render := func(rctx context.Context) (string, error) {
		close(started)
		<-release
		return "late", rctx.Err()
	}

	cctx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() {
		_, err := m.Do(cctx, 5, render)
		errc <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	// The detached render still completes and is stored for the next caller.
	assert.Eventually(t, func() bool {
		v, ok, err := m.Store().Get(ctx, 5)
		return err == nil && ok && v == "late"
	}, time.Second, time.Millisecond)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, uint64) (string, bool, error) {
	return "", false, errors.New("store down")
}

func (brokenStore) Set(context.Context, uint64, string) error {
	return errors.New("store down")
}

func TestDoBrokenStore(t *testing.T) {
	t.Parallel()

	ctx := testCtx(t)
	m := memo.New(brokenStore{})

	var calls atomic.Int64
	for i := 0; i < 2; i++ {
		v, err := m.Do(ctx, 1, func(context.Context) (string, error) {
			calls.Add(1)
			return "fresh", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "fresh", v)
	}
	assert.Equal(t, int64(2), calls.Load())
}
