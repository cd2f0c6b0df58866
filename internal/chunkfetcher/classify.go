package chunkfetcher

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gotd/td/tgerr"
)

type failureClass int

const (
	classNone failureClass = iota
	classFloodWait
	classNetwork
	classReferenceExpired
	classUnexpected
)

// classify inspects an upstream GetChunk error and sorts it into the
// taxonomy spec.md §4.3/§7 dictates: FloodWait and network-class failures
// are recovered inline, reference-expired surfaces as ErrStale, everything
// else is ErrUpstream.
func classify(err error) (failureClass, time.Duration) {
	if err == nil {
		return classNone, 0
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return classFloodWait, wait
	}
	if strings.Contains(err.Error(), "FILE_REFERENCE_EXPIRED") {
		return classReferenceExpired, 0
	}
	if isNetworkClass(err) {
		return classNetwork, 0
	}
	return classUnexpected, 0
}

func isNetworkClass(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
