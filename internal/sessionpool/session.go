package sessionpool

import (
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

// State is the lifecycle state of a Session, per spec.md §3.
type State int

const (
	StateAbsent State = iota
	StateConnecting
	StateReady
	StateBroken
)

// Session wraps one authenticated MTProto connection to a specific
// datacenter. It is owned exclusively by the SessionPool that created it;
// callers borrow it by reference and never close it themselves — closing
// happens only via Pool.Reset or the idle reaper.
//
// send is serialized by sendMu: upstream sessions are not concurrency-safe
// (spec.md §5), so every RPC on this session goes through Send.
type Session struct {
	DCID   int
	client *telegram.Client
	api    *tg.Client

	mu       sync.Mutex
	state    State
	lastUsed time.Time

	sendMu sync.Mutex

	stop func()
}

func newSession(dcID int, client *telegram.Client, stop func()) *Session {
	s := &Session{
		DCID:     dcID,
		client:   client,
		state:    StateReady,
		lastUsed: time.Now(),
		stop:     stop,
	}
	if client != nil {
		s.api = client.API()
	}
	return s
}

// NewHomeSession wraps an already-authorized home-dc API client as a
// Session with a no-op close: the home connection is owned by the
// ClientIdentity itself, not the session pool (spec.md §4.2: "When the
// target equals the home dc, reuse the home credentials directly").
func NewHomeSession(dcID int, api *tg.Client) *Session {
	return &Session{
		DCID:     dcID,
		api:      api,
		state:    StateReady,
		lastUsed: time.Now(),
		stop:     func() {},
	}
}

// touch stamps last_used; ChunkFetcher calls this before every send (spec.md §4.2).
func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastUsed)
}

func (s *Session) markBroken() {
	s.mu.Lock()
	s.state = StateBroken
	s.mu.Unlock()
}

func (s *Session) isBroken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateBroken
}

// API returns the RPC client. Callers must still route actual calls through
// Send so concurrent fetches on the same session don't race the transport.
func (s *Session) API() *tg.Client {
	return s.api
}

// Send serializes one RPC against this session and stamps last_used first,
// matching ChunkFetcher's retry loop in spec.md §4.3.
func (s *Session) Send(touch bool, fn func(api *tg.Client) (tg.Object, error)) (tg.Object, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if touch {
		s.touch()
	}
	return fn(s.api)
}

func (s *Session) close() {
	if s.stop != nil {
		s.stop()
	}
}
