package streamdriver

import "github.com/pkg/errors"

// ErrAborted marks a stream that ended early because of a client
// disconnect or cancellation (spec.md §5 "Cancellation").
var ErrAborted = errors.New("streamdriver: aborted")
