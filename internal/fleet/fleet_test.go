package fleet

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFleet(t *testing.T, n int, globalLimit int64) *Fleet {
	t.Helper()
	f := New(globalLimit, zap.NewNop())
	for i := 0; i < n; i++ {
		f.Add(&Identity{Handle: "bot"})
	}
	return f
}

func TestPickPrefersLeastLoaded(t *testing.T) {
	f := newTestFleet(t, 3, 10)
	ctx := context.Background()

	first := f.Pick()
	require.NoError(t, f.Acquire(ctx, first))
	require.Equal(t, 0, first.Index)

	second := f.Pick()
	assert.NotEqual(t, first.Index, second.Index, "second pick should avoid the now-loaded identity")
}

func TestPickTiesBrokenByLowerIndex(t *testing.T) {
	f := newTestFleet(t, 4, 10)
	id := f.Pick()
	assert.Equal(t, 0, id.Index)
}

func TestAcquireReleaseBalancesLoad(t *testing.T) {
	f := newTestFleet(t, 2, 10)
	ctx := context.Background()

	id := f.Pick()
	require.NoError(t, f.Acquire(ctx, id))
	assert.Equal(t, int64(1), sumLoads(f))

	f.Release(id)
	assert.Equal(t, int64(0), sumLoads(f))
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	f := newTestFleet(t, 1, 10)
	id := f.Pick()
	f.Release(id)
	f.Release(id)
	assert.Equal(t, int64(0), f.Loads()[0].Load)
}

func TestGlobalSemaphoreCapsConcurrency(t *testing.T) {
	f := newTestFleet(t, 1, 2)
	ctx := context.Background()
	id := f.Pick()

	require.NoError(t, f.Acquire(ctx, id))
	require.NoError(t, f.Acquire(ctx, id))

	blocked := make(chan struct{})
	go func() {
		_ = f.Acquire(ctx, id)
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("third Acquire should have blocked at global cap of 2")
	default:
	}

	f.Release(id)
	<-blocked
	f.Release(id)
	f.Release(id)
}

func TestWorkLoadNeverNegativeUnderConcurrency(t *testing.T) {
	f := newTestFleet(t, 4, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := f.Pick()
			if f.Acquire(ctx, id) == nil {
				f.Release(id)
			}
		}()
	}
	wg.Wait()

	for _, l := range f.Loads() {
		assert.GreaterOrEqual(t, l.Load, int64(0))
	}
}

func sumLoads(f *Fleet) int64 {
	var total int64
	for _, l := range f.Loads() {
		total += l.Load
	}
	return total
}
