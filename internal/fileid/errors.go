package fileid

import "github.com/pkg/errors"

var (
	// ErrMalformedDescriptor is returned by Decode when the type tag or
	// payload of an opaque descriptor doesn't match any known FileType.
	ErrMalformedDescriptor = errors.New("fileid: malformed descriptor")

	errPhotoHasNoSizes = errors.New("fileid: photo has no sizes")
	errPhotoSizeEmpty  = errors.New("fileid: photo size is empty")
	errUnsupportedPeer = errors.New("fileid: chat_photo descriptor carries no resolvable peer")
)
