// Package streamdriver runs one RangePlan against a ChunkFetcher, slicing
// each part's head/tail and emitting it to the HTTP response body, per
// spec.md §4.7.
package streamdriver

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/everythingsuckz/streamgate/internal/chunkfetcher"
	"github.com/everythingsuckz/streamgate/internal/fileid"
	"github.com/everythingsuckz/streamgate/internal/fleet"
	"github.com/everythingsuckz/streamgate/internal/rangeplan"
)

// Phase is the StreamDriver state machine of spec.md §4.7.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseAcquiring
	PhaseStreaming
	PhaseCompleted
	PhaseAborted
)

// Driver runs one plan to completion against one client identity.
type Driver struct {
	fleet    *fleet.Fleet
	fetchers map[int]*chunkfetcher.Fetcher // keyed by fleet.Identity.Index
	log      *zap.Logger

	phase Phase
}

// New builds a Driver. fetchers maps each registered identity's index to
// the Fetcher bound to that identity's session pool.
func New(f *fleet.Fleet, fetchers map[int]*chunkfetcher.Fetcher, log *zap.Logger) *Driver {
	return &Driver{fleet: f, fetchers: fetchers, log: log.Named("streamdriver"), phase: PhaseNotStarted}
}

// Phase reports the current lifecycle phase.
func (d *Driver) Phase() Phase {
	return d.phase
}

// Run streams plan's bytes for fd using identity, writing to w. msgID is
// passed through to the ChunkFetcher for cache-invalidation on a stale
// reference. Returns ErrAborted if ctx is cancelled between parts or a
// write to w fails (a client disconnect); other errors come from acquiring
// the fleet slot or session, building the location, or the first
// ChunkFetcher failure encountered, and the stream is not retried at this
// level (spec.md §4.7: "the HTTP body is already being written").
func (d *Driver) Run(ctx context.Context, plan *rangeplan.Plan, fd *fileid.FileDescriptor, identity *fleet.Identity, msgID int, w io.Writer) error {
	d.phase = PhaseAcquiring

	if err := d.fleet.Acquire(ctx, identity); err != nil {
		d.phase = PhaseAborted
		return errors.Wrap(err, "streamdriver: acquire fleet slot")
	}
	defer d.fleet.Release(identity)

	session, err := identity.Pool.Acquire(ctx, fd.DCID)
	if err != nil {
		d.phase = PhaseAborted
		return errors.Wrap(err, "streamdriver: acquire session")
	}

	loc, err := fd.Location()
	if err != nil {
		d.phase = PhaseAborted
		return errors.Wrap(err, "streamdriver: build location")
	}

	fetcher := d.fetchers[identity.Index]
	d.phase = PhaseStreaming

	for part := int64(1); part <= plan.PartCount; part++ {
		if ctx.Err() != nil {
			d.phase = PhaseAborted
			return ErrAborted
		}

		offset := plan.Offset(part)
		data, err := fetcher.Fetch(ctx, loc, offset, plan.ChunkSize, fd.DCID, msgID, session)
		if err != nil {
			d.phase = PhaseAborted
			return errors.Wrap(err, "streamdriver: fetch part")
		}
		if len(data) == 0 {
			break
		}

		slice := sliceForPart(data, part, plan)
		if _, err := w.Write(slice); err != nil {
			d.phase = PhaseAborted
			return ErrAborted
		}

		// A short read (len(data) < chunk_size) ends the stream once the
		// slice it produced has been emitted; never assume a full chunk
		// (spec.md §4.7).
		if int64(len(data)) < plan.ChunkSize && part < plan.PartCount {
			break
		}
	}

	d.phase = PhaseCompleted
	return nil
}

// sliceForPart applies spec.md §4.7's head/tail/middle slicing rule.
func sliceForPart(data []byte, part int64, plan *rangeplan.Plan) []byte {
	switch {
	case plan.PartCount == 1:
		return clampSlice(data, plan.FirstCut, plan.LastCut)
	case part == 1:
		return clampSlice(data, plan.FirstCut, int64(len(data)))
	case part == plan.PartCount:
		return clampSlice(data, 0, plan.LastCut)
	default:
		return data
	}
}

// clampSlice bounds [from,to) to data's actual length, tolerating a short
// read whose length is less than the plan's nominal cut points.
func clampSlice(data []byte, from, to int64) []byte {
	if from < 0 {
		from = 0
	}
	if from > int64(len(data)) {
		from = int64(len(data))
	}
	if to > int64(len(data)) {
		to = int64(len(data))
	}
	if to < from {
		to = from
	}
	return data[from:to]
}
