// Package fleet holds the set of upstream client identities a stream may be
// dispatched to and picks the least-loaded one, per spec.md §4.4.
package fleet

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/everythingsuckz/streamgate/internal/sessionpool"
)

// Identity is one upstream client (default bot or one of MULTI_CLIENT's
// worker bots), each owning its own session pool.
type Identity struct {
	Index  int
	Handle string // @username, used for status JSON and logging
	HomeDC int
	Pool   *sessionpool.Pool
}

// Fleet holds an ordered sequence of Identities plus their in-flight
// WorkLoad counters, and a fleet-wide cap on total concurrent streams.
type Fleet struct {
	mu         sync.Mutex
	identities []*Identity
	load       []int64 // load[i] tracks identities[i]

	global *semaphore.Weighted
	log    *zap.Logger
}

// New builds a Fleet with a global concurrent-stream cap (spec.md
// GLOBAL_STREAM_LIMIT, default 10).
func New(globalStreamLimit int64, log *zap.Logger) *Fleet {
	return &Fleet{
		global: semaphore.NewWeighted(globalStreamLimit),
		log:    log.Named("fleet"),
	}
}

// Add registers an identity, assigning its Index in registration order.
func (f *Fleet) Add(id *Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id.Index = len(f.identities)
	f.identities = append(f.identities, id)
	f.load = append(f.load, 0)
}

// Len reports the number of registered identities.
func (f *Fleet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.identities)
}

// Default returns the first-registered identity (the one owning channel
// access in single-client deployments).
func (f *Fleet) Default() *Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.identities) == 0 {
		return nil
	}
	return f.identities[0]
}

// All returns a copy of the registered identities in registration order.
func (f *Fleet) All() []*Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Identity, len(f.identities))
	copy(out, f.identities)
	return out
}

// Pick returns the identity with the smallest in-flight WorkLoad, ties
// broken by the lower index for determinism (spec.md §4.4).
func (f *Fleet) Pick() *Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.identities) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(f.identities); i++ {
		if f.load[i] < f.load[best] {
			best = i
		}
	}
	return f.identities[best]
}

// Acquire blocks until the global stream semaphore admits one more stream,
// then increments the picked identity's WorkLoad. Call Release exactly once
// per successful Acquire, on every exit path.
func (f *Fleet) Acquire(ctx context.Context, id *Identity) error {
	if err := f.global.Acquire(ctx, 1); err != nil {
		return err
	}
	f.mu.Lock()
	f.load[id.Index]++
	f.mu.Unlock()
	return nil
}

// Release decrements the identity's WorkLoad and frees one slot in the
// global semaphore.
func (f *Fleet) Release(id *Identity) {
	f.mu.Lock()
	if f.load[id.Index] > 0 {
		f.load[id.Index]--
	}
	f.mu.Unlock()
	f.global.Release(1)
}

// LoadSnapshot is one entry of the `/` status JSON's `loads` map.
type LoadSnapshot struct {
	Handle string
	Load   int64
}

// Loads returns a copy of the current per-identity load, sorted descending
// by load (spec.md §4.8 status contract).
func (f *Fleet) Loads() []LoadSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LoadSnapshot, len(f.identities))
	for i, id := range f.identities {
		out[i] = LoadSnapshot{Handle: id.Handle, Load: f.load[i]}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Load > out[b].Load })
	return out
}
