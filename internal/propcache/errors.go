package propcache

import "github.com/pkg/errors"

var (
	// ErrNoMedia signals the stored message no longer carries attached media.
	ErrNoMedia = errors.New("propcache: message no longer carries media")

	// ErrNotFound signals the msg_id has no corresponding message at all.
	ErrNotFound = errors.New("propcache: message not found")
)
