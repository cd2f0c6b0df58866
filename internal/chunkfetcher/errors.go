package chunkfetcher

import "github.com/pkg/errors"

var (
	// ErrStale signals a reference-expired response from the upstream; the
	// caller must invalidate its FilePropCache entry (spec.md §4.5, §7).
	ErrStale = errors.New("chunkfetcher: file reference expired")

	// ErrUpstream wraps any unexpected upstream error that isn't one of the
	// recognized FloodWait / network / reference-expired classes.
	ErrUpstream = errors.New("chunkfetcher: upstream error")

	// ErrExhausted is returned once MAX_RETRIES network-class attempts
	// have all failed.
	ErrExhausted = errors.New("chunkfetcher: retries exhausted")
)
