// Package fileid decodes and encodes the opaque file descriptor the bot
// hands out in public URLs, and builds the tg input-location value needed
// to fetch bytes for it.
package fileid

import (
	"bytes"
	"crypto/md5"
	"encoding/gob"
	"encoding/hex"
	"fmt"

	"github.com/gotd/td/tg"
)

// FileType identifies which media kind a FileDescriptor points at.
type FileType int

const (
	TypeDocument FileType = iota
	TypePhoto
	TypeChatPhoto
)

func (t FileType) String() string {
	switch t {
	case TypeDocument:
		return "document"
	case TypePhoto:
		return "photo"
	case TypeChatPhoto:
		return "chat_photo"
	default:
		return "unknown"
	}
}

// FileDescriptor is immutable once resolved by the prop cache. FileReference
// is the one field the upstream treats as time-limited; everything else is
// stable for the lifetime of the message.
type FileDescriptor struct {
	MediaID        int64
	AccessHash     int64
	FileReference  []byte
	DCID           int
	FileType       FileType
	ThumbSize      string
	ChatID         int64
	ChatAccessHash int64
	Big            bool

	UniqueIDPrefix string
	FileSize       int64
	MimeType       string
	FileName       string
}

// gobForm mirrors FileDescriptor field-for-field. FileDescriptor itself
// implements GobEncode/GobDecode so that freecache-backed storage (see
// internal/propcache) round-trips it without reflecting over tg interfaces.
type gobForm struct {
	MediaID        int64
	AccessHash     int64
	FileReference  []byte
	DCID           int
	FileType       FileType
	ThumbSize      string
	ChatID         int64
	ChatAccessHash int64
	Big            bool
	UniqueIDPrefix string
	FileSize       int64
	MimeType       string
	FileName       string
}

func (fd *FileDescriptor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobForm(*fd)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (fd *FileDescriptor) GobDecode(data []byte) error {
	var g gobForm
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	*fd = FileDescriptor(g)
	return nil
}

// stableKey is the subset of fields that never change across a refetch of
// the same message; UniqueIDPrefix is derived from their hash so that it
// stays stable even when FileReference is refreshed.
type stableKey struct {
	MediaID  int64
	DCID     int
	FileType FileType
	FileSize int64
	FileName string
}

// computeUniqueIDPrefix derives the stable per-file identifier used as the
// URL hash: the first 6 hex characters of an MD5 digest over k. The rest
// of the digest is discarded.
func computeUniqueIDPrefix(k stableKey) string {
	h := md5.New()
	fmt.Fprintf(h, "%d:%d:%d:%d:%s", k.MediaID, k.DCID, k.FileType, k.FileSize, k.FileName)
	return hex.EncodeToString(h.Sum(nil))[:6]
}

// fromDocument builds a FileDescriptor from a resolved tg.Document.
func fromDocument(doc *tg.Document, dcID int) *FileDescriptor {
	var fileName, mimeType string
	mimeType = doc.MimeType
	for _, attr := range doc.Attributes {
		if name, ok := attr.(*tg.DocumentAttributeFilename); ok {
			fileName = name.FileName
			break
		}
	}
	fd := &FileDescriptor{
		MediaID:       doc.ID,
		AccessHash:    doc.AccessHash,
		FileReference: doc.FileReference,
		DCID:          dcID,
		FileType:      TypeDocument,
		FileSize:      doc.Size,
		MimeType:      mimeType,
		FileName:      fileName,
	}
	fd.UniqueIDPrefix = computeUniqueIDPrefix(stableKey{fd.MediaID, fd.DCID, fd.FileType, fd.FileSize, fd.FileName})
	return fd
}

// fromPhoto builds a FileDescriptor from a resolved tg.Photo, selecting the
// largest available size as the thumb to fetch (photos carry no top-level
// FileSize; the gateway treats the chosen size's length as the file size).
func fromPhoto(photo *tg.Photo, dcID int) (*FileDescriptor, error) {
	if len(photo.Sizes) == 0 {
		return nil, errPhotoHasNoSizes
	}
	largest := photo.Sizes[len(photo.Sizes)-1]
	sz, ok := largest.AsNotEmpty()
	if !ok {
		return nil, errPhotoSizeEmpty
	}
	var fileSize int64
	if withSize, ok := largest.(*tg.PhotoSize); ok {
		fileSize = int64(withSize.Size)
	}
	fd := &FileDescriptor{
		MediaID:       photo.ID,
		AccessHash:    photo.AccessHash,
		FileReference: photo.FileReference,
		DCID:          dcID,
		FileType:      TypePhoto,
		ThumbSize:     sz.GetType(),
		FileSize:      fileSize,
		MimeType:      "image/jpeg",
		FileName:      fmt.Sprintf("photo_%d.jpg", photo.ID),
	}
	fd.UniqueIDPrefix = computeUniqueIDPrefix(stableKey{fd.MediaID, fd.DCID, fd.FileType, fd.FileSize, fd.FileName})
	return fd, nil
}
