package sessionpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDialer never actually dials gotd/td; it only exercises Pool's
// bookkeeping (creation count, singleflight de-duplication, reset/reacquire
// identity). Every "foreign dc" session it hands back wraps a nil
// *telegram.Client, which is fine since Pool never calls methods on it
// directly outside of authorize (which these tests skip via testSkipAuth).
type fakeDialer struct {
	homeDCID int
	home     *Session

	dials int32
}

func (f *fakeDialer) DialDC(ctx context.Context, dcID int) (*telegram.Client, func(), error) {
	atomic.AddInt32(&f.dials, 1)
	return nil, func() {}, nil
}

func (f *fakeDialer) HomeDCID() int         { return f.homeDCID }
func (f *fakeDialer) HomeAPI() *tg.Client   { return nil }
func (f *fakeDialer) HomeSession() *Session { return f.home }

func newTestPool(t *testing.T) (*Pool, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{homeDCID: 2, home: newSession(2, nil, nil)}
	pool := New(dialer, zap.NewNop(), 2, 300*time.Second)
	// authorize() calls home.AuthExportAuthorization which would nil-panic
	// on the nil *tg.Client HomeAPI returns; testSkipAuth makes create skip
	// the handshake for foreign dcs.
	pool.testSkipAuth = true
	return pool, dialer
}

func TestAcquireCreatesOncePerDC(t *testing.T) {
	pool, dialer := newTestPool(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*Session, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := pool.Acquire(ctx, 4)
			require.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&dialer.dials))
}

func TestAcquireHomeDCReturnsHomeSession(t *testing.T) {
	pool, dialer := newTestPool(t)
	s, err := pool.Acquire(context.Background(), dialer.homeDCID)
	require.NoError(t, err)
	assert.Same(t, dialer.home, s)
}

func TestResetThenAcquireCreatesFresh(t *testing.T) {
	pool, dialer := newTestPool(t)
	ctx := context.Background()

	first, err := pool.Acquire(ctx, 4)
	require.NoError(t, err)

	pool.Reset(4)

	second, err := pool.Acquire(ctx, 4)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dialer.dials))
}

func TestAdmitReleaseRespectsCap(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx := context.Background()
	require.NoError(t, pool.Admit(ctx, 4))
	require.NoError(t, pool.Admit(ctx, 4))

	admitted := make(chan struct{})
	go func() {
		_ = pool.Admit(context.Background(), 4)
		close(admitted)
	}()

	select {
	case <-admitted:
		t.Fatal("third Admit should block while cap=2 is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(4)
	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatal("Admit did not unblock after Release")
	}
}

func TestReapOnceClosesIdleSessions(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx := context.Background()

	s, err := pool.Acquire(ctx, 4)
	require.NoError(t, err)
	s.lastUsed = time.Now().Add(-time.Hour)

	pool.idleTimeout = time.Minute
	pool.reapOnce()

	pool.mu.Lock()
	_, stillThere := pool.sessions[4]
	pool.mu.Unlock()
	assert.False(t, stillThere, "idle session should have been reset")
}
