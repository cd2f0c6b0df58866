// Package chunkfetcher performs one retrying, adaptive-chunk-sized
// GetChunk call against a sessionpool.Pool, per spec.md §4.3.
package chunkfetcher

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/everythingsuckz/streamgate/internal/sessionpool"
)

const (
	// MinChunk, MaxChunk and MaxRetries are the spec.md §4.3 defaults;
	// New's callers may override them from config.ValueOf.
	MinChunk    = 64 * 1024
	MaxChunk    = 512 * 1024
	ThumbChunk  = 256 * 1024
	MaxRetries  = 6
	baseBackoff = 2 * time.Second
)

// Fetcher performs one GetChunk call with retry/backoff/adaptive sizing.
type Fetcher struct {
	pool       *sessionpool.Pool
	log        *zap.Logger
	invalidate func(msgID int)

	minChunk   int64
	maxRetries int
}

// New builds a Fetcher bound to a client identity's session pool. invalidate
// is called with the owning msg_id when a reference-expired response is
// observed, so the caller's FilePropCache entry is dropped (spec.md §4.5).
// minChunk is the floor the adaptive halving in Fetch won't go below
// (config.ValueOf.MinChunk); maxRetries bounds the network-class retry
// budget (config.ValueOf.MaxRetries). Passing zero for either falls back
// to the spec.md §4.3 defaults.
func New(pool *sessionpool.Pool, log *zap.Logger, minChunk int64, maxRetries int, invalidate func(msgID int)) *Fetcher {
	if minChunk <= 0 {
		minChunk = MinChunk
	}
	if maxRetries <= 0 {
		maxRetries = MaxRetries
	}
	return &Fetcher{
		pool:       pool,
		log:        log.Named("chunkfetcher"),
		invalidate: invalidate,
		minChunk:   minChunk,
		maxRetries: maxRetries,
	}
}

// Fetch requests up to limit bytes at offset from loc in dcID, retrying per
// the algorithm of spec.md §4.3: FloodWait is absorbed without consuming
// the retry budget; network/timeout failures halve the chunk limit (floor
// MinChunk), back off on a doubling schedule starting at 2s
// (backoff.BackOff, see fixedDoublingBackOff) and reset+reacquire the
// session. With the default six attempts the delays are 2,4,8,16,32s; the
// last failed attempt returns ErrExhausted without waiting. Reference-expired invalidates the caller's cache entry and
// surfaces ErrStale; anything else surfaces ErrUpstream.
func (f *Fetcher) Fetch(ctx context.Context, loc tg.InputFileLocationClass, offset, limit int64, dcID, msgID int, session *sessionpool.Session) ([]byte, error) {
	currentLimit := limit
	bo := newFixedDoublingBackOff(f.maxRetries, baseBackoff)

	for attempt := 1; ; {
		if err := f.pool.Admit(ctx, dcID); err != nil {
			return nil, errors.Wrap(err, "chunkfetcher: admit")
		}
		res, sendErr := session.Send(true, func(api *tg.Client) (tg.Object, error) {
			return api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
				Location: loc,
				Offset:   offset,
				Limit:    int(currentLimit),
			})
		})
		f.pool.Release(dcID)

		class, wait := classify(sendErr)
		switch class {
		case classNone:
			file, ok := res.(*tg.UploadFile)
			if !ok {
				return nil, errors.Wrap(ErrUpstream, "unexpected UploadGetFile response type")
			}
			return file.GetBytes(), nil

		case classFloodWait:
			f.log.Debug("flood wait, sleeping", zap.Duration("wait", wait), zap.Int("dc_id", dcID))
			sleep(ctx, wait)
			// Explicitly does not count against MaxRetries (spec.md §4.3).
			continue

		case classReferenceExpired:
			if f.invalidate != nil {
				f.invalidate(msgID)
			}
			return nil, ErrStale

		case classNetwork:
			if attempt >= f.maxRetries {
				return nil, errors.Wrap(ErrExhausted, sendErr.Error())
			}
			currentLimit = f.halve(currentLimit)
			delay := bo.NextBackOff()
			f.log.Debug("network-class failure, halving chunk and resetting session",
				zap.String("new_limit", humanize.IBytes(uint64(currentLimit))),
				zap.Duration("backoff", delay),
				zap.Int("dc_id", dcID), zap.Error(sendErr))
			sleep(ctx, delay)
			fresh, resetErr := f.pool.ResetAndReacquire(ctx, dcID)
			if resetErr != nil {
				return nil, errors.Wrap(resetErr, "chunkfetcher: reacquire session after network failure")
			}
			session = fresh
			attempt++
			continue

		default:
			return nil, errors.Wrap(ErrUpstream, sendErr.Error())
		}
	}
}

func (f *Fetcher) halve(limit int64) int64 {
	limit /= 2
	if limit < f.minChunk {
		return f.minChunk
	}
	return limit
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
