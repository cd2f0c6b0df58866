// Package sessionpool maintains, per upstream client identity, at most one
// live authenticated session per datacenter — creating, authorizing,
// reusing, resetting and idle-reaping them per spec.md §4.2.
package sessionpool

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// ErrAuthFailed is returned when the export/import handshake to a foreign
// datacenter exhausts its retry budget.
var ErrAuthFailed = errors.New("sessionpool: authorization handshake exhausted retries")

const importAuthRetries = 6

// Dialer opens a new media-mode MTProto connection to the given dc and
// returns it alongside a stop func that tears the connection down. The
// concrete implementation lives in internal/bot, which knows how to reach
// gotd/td's DC list and the identity's API ID/hash.
type Dialer interface {
	DialDC(ctx context.Context, dcID int) (*telegram.Client, func(), error)
	HomeDCID() int
	HomeAPI() *tg.Client
	HomeSession() *Session
}

// Pool is the per-ClientIdentity collection of live sessions, one per dc_id.
type Pool struct {
	dialer Dialer
	log    *zap.Logger

	maxStreamsPerDC int64
	idleTimeout     time.Duration

	mu       sync.Mutex
	sessions map[int]*Session
	sems     map[int]*semaphore.Weighted

	group singleflight.Group

	stopReaper chan struct{}
	reaperOnce sync.Once

	// testSkipAuth bypasses the export/import handshake; set only by unit
	// tests that stub out Dialer without a real *tg.Client to call.
	testSkipAuth bool
}

// New constructs a Pool. Start must be called once to launch the idle
// reaper background task.
func New(dialer Dialer, log *zap.Logger, maxStreamsPerDC int64, idleTimeout time.Duration) *Pool {
	return &Pool{
		dialer:          dialer,
		log:             log.Named("sessionpool"),
		maxStreamsPerDC: maxStreamsPerDC,
		idleTimeout:     idleTimeout,
		sessions:        make(map[int]*Session),
		sems:            make(map[int]*semaphore.Weighted),
		stopReaper:      make(chan struct{}),
	}
}

// Start launches the idle reaper, which wakes every 60s and closes any
// session idle for longer than idleTimeout (spec.md §4.2).
func (p *Pool) Start() {
	go p.reapLoop()
}

// Stop halts the idle reaper. It does not close live sessions; that is the
// caller's responsibility via Reset if a full teardown is desired.
func (p *Pool) Stop() {
	p.reaperOnce.Do(func() { close(p.stopReaper) })
}

func (p *Pool) reapLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapOnce()
		case <-p.stopReaper:
			return
		}
	}
}

func (p *Pool) reapOnce() {
	now := time.Now()
	p.mu.Lock()
	var stale []int
	for dcID, sess := range p.sessions {
		if sess.idleSince(now) > p.idleTimeout {
			stale = append(stale, dcID)
		}
	}
	p.mu.Unlock()
	for _, dcID := range stale {
		p.log.Debug("reaping idle session", zap.Int("dc_id", dcID))
		p.Reset(dcID)
	}
}

// semaphoreFor returns (creating if absent) the per-dc admission semaphore.
func (p *Pool) semaphoreFor(dcID int) *semaphore.Weighted {
	p.mu.Lock()
	defer p.mu.Unlock()
	sem, ok := p.sems[dcID]
	if !ok {
		sem = semaphore.NewWeighted(p.maxStreamsPerDC)
		p.sems[dcID] = sem
	}
	return sem
}

// Admit blocks until a fetch slot for dcID is available, enforcing
// MAX_STREAMS_PER_DC concurrent fetches (spec.md §4.2 invariant).
func (p *Pool) Admit(ctx context.Context, dcID int) error {
	return p.semaphoreFor(dcID).Acquire(ctx, 1)
}

// Release gives back a fetch slot acquired via Admit.
func (p *Pool) Release(dcID int) {
	p.semaphoreFor(dcID).Release(1)
}

// Acquire returns a ready session for dcID, creating one if absent.
// Concurrent acquirers for the same new dc_id are serialized by a
// singleflight group so only one creation runs (spec.md §4.2). No active
// liveness probe is performed — an existing, non-broken session is handed
// back as-is; staleness is only discovered lazily at the ChunkFetcher
// send site (spec.md §9).
func (p *Pool) Acquire(ctx context.Context, dcID int) (*Session, error) {
	p.mu.Lock()
	existing, ok := p.sessions[dcID]
	p.mu.Unlock()
	if ok && !existing.isBroken() {
		return existing, nil
	}

	v, err, _ := p.group.Do(groupKey(dcID), func() (interface{}, error) {
		// Re-check under the singleflight key: another caller may have
		// just finished creating this session while we waited to enter.
		p.mu.Lock()
		if s, ok := p.sessions[dcID]; ok && !s.isBroken() {
			p.mu.Unlock()
			return s, nil
		}
		p.mu.Unlock()

		sess, err := p.create(ctx, dcID)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.sessions[dcID] = sess
		p.mu.Unlock()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func groupKey(dcID int) string {
	return "dc:" + strconv.Itoa(dcID)
}

// create opens a new session for dcID, running the non-home-dc
// authorization handshake when needed.
func (p *Pool) create(ctx context.Context, dcID int) (*Session, error) {
	if dcID == p.dialer.HomeDCID() {
		return p.dialer.HomeSession(), nil
	}

	client, stop, err := p.dialer.DialDC(ctx, dcID)
	if err != nil {
		return nil, errors.Wrapf(err, "sessionpool: dial dc %d", dcID)
	}

	if !p.testSkipAuth {
		if err := p.authorize(ctx, client, dcID); err != nil {
			stop()
			return nil, err
		}
	}

	return newSession(dcID, client, stop), nil
}

// authorize runs the export/import handshake described in spec.md §4.2:
// export fresh credentials from the home dc and import them into the
// foreign-dc client, retrying up to importAuthRetries times (each
// iteration re-exports) to absorb transient AuthBytesInvalid responses.
func (p *Pool) authorize(ctx context.Context, client *telegram.Client, dcID int) error {
	home := p.dialer.HomeAPI()
	api := client.API()

	var lastErr error
	for attempt := 1; attempt <= importAuthRetries; attempt++ {
		exported, err := home.AuthExportAuthorization(ctx, &tg.AuthExportAuthorizationRequest{DCID: dcID})
		if err != nil {
			lastErr = errors.Wrap(err, "export authorization")
			continue
		}
		_, err = api.AuthImportAuthorization(ctx, &tg.AuthImportAuthorizationRequest{
			ID:    exported.ID,
			Bytes: exported.Bytes,
		})
		if err == nil {
			return nil
		}
		lastErr = err
		p.log.Debug("import authorization attempt failed, re-exporting",
			zap.Int("dc_id", dcID), zap.Int("attempt", attempt), zap.Error(err))
	}
	return errors.Wrapf(ErrAuthFailed, "dc %d: %v", dcID, lastErr)
}

// Reset atomically removes dcID's session from the pool and closes it,
// ignoring close errors. Idempotent: resetting an absent dc is a no-op.
// A removed foreign-dc session is never re-inserted — the next Acquire
// dials a fresh one (spec.md §8 "Session lifecycle"). The home-dc session
// is not closed, and the next Acquire for the home dc returns the
// identity's same HomeSession again.
func (p *Pool) Reset(dcID int) {
	p.mu.Lock()
	sess, ok := p.sessions[dcID]
	if ok {
		delete(p.sessions, dcID)
	}
	p.mu.Unlock()
	if ok && sess != p.dialer.HomeSession() {
		sess.markBroken()
		sess.close()
	}
}

// ResetAndReacquire resets dcID then immediately acquires a fresh session,
// the recovery step ChunkFetcher invokes on a Network-class failure
// (spec.md §4.3).
func (p *Pool) ResetAndReacquire(ctx context.Context, dcID int) (*Session, error) {
	p.Reset(dcID)
	return p.Acquire(ctx, dcID)
}
