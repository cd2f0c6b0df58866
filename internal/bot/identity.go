// Package bot bootstraps one or more Telegram client identities (the
// default bot, plus MULTI_CLIENT worker bots) and adapts each into the
// sessionpool.Dialer contract ChunkFetcher's session pool needs to reach
// foreign datacenters.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/everythingsuckz/streamgate/internal/sessionpool"
)

// ClientIdentity is one upstream account. It owns exactly one
// sessionpool.Pool (spec.md §3 ownership rules).
type ClientIdentity struct {
	Index   int
	Handle  string
	APIID   int
	APIHash string

	home *gotgproto.Client
	log  *zap.Logger

	Pool *sessionpool.Pool

	mu          sync.Mutex
	homeDCID    int
	homeDCKnown bool
	homeSession *sessionpool.Session
}

// NewIdentity wraps an already-authorized gotgproto.Client.
func NewIdentity(index int, client *gotgproto.Client, apiID int, apiHash string, log *zap.Logger) *ClientIdentity {
	handle := "@unknown"
	if client.Self != nil {
		handle = "@" + client.Self.Username
	}
	return &ClientIdentity{
		Index:   index,
		Handle:  handle,
		APIID:   apiID,
		APIHash: apiHash,
		home:    client,
		log:     log.Named(fmt.Sprintf("identity.%d", index)),
	}
}

// StartPool builds and starts this identity's SessionPool. Call once after
// construction, before the identity serves any streams.
func (id *ClientIdentity) StartPool(maxStreamsPerDC int64, idleTimeout time.Duration) {
	id.Pool = sessionpool.New(id, id.log, maxStreamsPerDC, idleTimeout)
	id.Pool.Start()
}

// HomeAPI implements sessionpool.Dialer.
func (id *ClientIdentity) HomeAPI() *tg.Client {
	return id.home.API()
}

// HomeSession implements sessionpool.Dialer: the home dc never goes
// through the export/import handshake, so it is represented by a Session
// wrapping the already-authorized home client directly. Memoized so every
// caller (including Pool.Reset's identity check) observes the same
// pointer.
func (id *ClientIdentity) HomeSession() *sessionpool.Session {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.homeSession == nil {
		id.homeSession = sessionpool.NewHomeSession(id.homeDCIDLocked(), id.home.API())
	}
	return id.homeSession
}

// HomeDCID implements sessionpool.Dialer, resolving and caching the
// account's home datacenter via help.getConfig on first use.
func (id *ClientIdentity) HomeDCID() int {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.homeDCIDLocked()
}

// homeDCIDLocked assumes id.mu is held.
func (id *ClientIdentity) homeDCIDLocked() int {
	if id.homeDCKnown {
		return id.homeDCID
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cfg, err := id.home.API().HelpGetConfig(ctx)
	if err != nil {
		id.log.Warn("failed to resolve home dc, defaulting to 2", zap.Error(err))
		return 2
	}
	id.homeDCID = cfg.ThisDC
	id.homeDCKnown = true
	return id.homeDCID
}

// DialDC implements sessionpool.Dialer: opens a fresh media-mode MTProto
// connection to dcID using the production DC list, returning it alongside
// a stop func that cancels the connection's run loop.
func (id *ClientIdentity) DialDC(ctx context.Context, dcID int) (*telegram.Client, func(), error) {
	runCtx, cancel := context.WithCancel(context.Background())

	client := telegram.NewClient(id.APIID, id.APIHash, telegram.Options{
		DC:          dcID,
		DCList:      dcs.Prod(),
		Middlewares: GetFloodMiddleware(id.log),
	})

	ready := make(chan error, 1)
	go func() {
		err := client.Run(runCtx, func(ctx context.Context) error {
			ready <- nil
			<-ctx.Done()
			return nil
		})
		if err != nil && runCtx.Err() == nil {
			select {
			case ready <- err:
			default:
			}
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			return nil, nil, errors.Wrapf(err, "bot: dial dc %d", dcID)
		}
	case <-ctx.Done():
		cancel()
		return nil, nil, ctx.Err()
	case <-time.After(30 * time.Second):
		cancel()
		return nil, nil, errors.Errorf("bot: dial dc %d timed out", dcID)
	}

	return client, cancel, nil
}
