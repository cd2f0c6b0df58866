package chunkfetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestHalveFloorsAtMinChunk(t *testing.T) {
	f := &Fetcher{minChunk: MinChunk}
	assert.Equal(t, int64(256*1024), f.halve(512*1024))
	assert.Equal(t, int64(MinChunk), f.halve(100*1024))
	assert.Equal(t, int64(MinChunk), f.halve(MinChunk))
}

func TestFixedDoublingBackOffSchedule(t *testing.T) {
	bo := newFixedDoublingBackOff(6, 2*time.Second)
	want := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 64 * time.Second,
	}
	for i, exp := range want {
		got := bo.NextBackOff()
		assert.Equalf(t, exp, got, "attempt %d", i+1)
	}
	assert.Equal(t, backoff.Stop, bo.NextBackOff(), "exhausted schedule signals Stop")
}

func TestFixedDoublingBackOffReset(t *testing.T) {
	bo := newFixedDoublingBackOff(2, time.Second)
	first := bo.NextBackOff()
	bo.Reset()
	again := bo.NextBackOff()
	assert.Equal(t, first, again)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyNetworkError(t *testing.T) {
	class, _ := classify(timeoutError{})
	assert.Equal(t, classNetwork, class)
}

func TestClassifyDeadlineExceeded(t *testing.T) {
	class, _ := classify(context.DeadlineExceeded)
	assert.Equal(t, classNetwork, class)
}

func TestClassifyReferenceExpired(t *testing.T) {
	class, _ := classify(errors.New("rpc error: FILE_REFERENCE_EXPIRED"))
	assert.Equal(t, classReferenceExpired, class)
}

func TestClassifyNil(t *testing.T) {
	class, _ := classify(nil)
	assert.Equal(t, classNone, class)
}
