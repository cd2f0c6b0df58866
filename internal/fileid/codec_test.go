package fileid

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	fd := &FileDescriptor{
		MediaID:       123,
		AccessHash:    456,
		FileReference: []byte{1, 2, 3},
		DCID:          2,
		FileType:      TypeDocument,
		FileSize:      1_048_577,
		MimeType:      "video/mp4",
		FileName:      "movie.mp4",
	}
	fd.UniqueIDPrefix = computeUniqueIDPrefix(stableKey{fd.MediaID, fd.DCID, fd.FileType, fd.FileSize, fd.FileName})

	raw, err := Encode(fd)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, fd.MediaID, got.MediaID)
	assert.Equal(t, fd.UniqueIDPrefix, got.UniqueIDPrefix)
	assert.Len(t, got.UniqueIDPrefix, 6)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("not a gob stream"))
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
}

func TestUniqueIDPrefixStableAcrossFileReferenceRefresh(t *testing.T) {
	k := stableKey{MediaID: 42, DCID: 2, FileType: TypeDocument, FileSize: 10, FileName: "a.bin"}
	first := computeUniqueIDPrefix(k)
	second := computeUniqueIDPrefix(k)
	assert.Equal(t, first, second, "unique id prefix must be stable across refetches")
}

func TestLocationDocument(t *testing.T) {
	fd := &FileDescriptor{MediaID: 1, AccessHash: 2, FileReference: []byte("ref"), FileType: TypeDocument}
	loc, err := fd.Location()
	require.NoError(t, err)
	doc, ok := loc.(*tg.InputDocumentFileLocation)
	require.True(t, ok)
	assert.Equal(t, int64(1), doc.ID)
}

func TestLocationChatPhotoUserPeer(t *testing.T) {
	fd := &FileDescriptor{MediaID: 9, FileType: TypeChatPhoto, ChatID: 555, ChatAccessHash: 777}
	loc, err := fd.Location()
	require.NoError(t, err)
	pf, ok := loc.(*tg.InputPeerPhotoFileLocation)
	require.True(t, ok)
	user, ok := pf.Peer.(*tg.InputPeerUser)
	require.True(t, ok)
	assert.Equal(t, int64(555), user.UserID)
}

func TestLocationChatPhotoChannelPeer(t *testing.T) {
	fd := &FileDescriptor{MediaID: 9, FileType: TypeChatPhoto, ChatID: -1_000_000_000_123, ChatAccessHash: 42}
	loc, err := fd.Location()
	require.NoError(t, err)
	pf, ok := loc.(*tg.InputPeerPhotoFileLocation)
	require.True(t, ok)
	ch, ok := pf.Peer.(*tg.InputPeerChannel)
	require.True(t, ok)
	assert.Equal(t, int64(123), ch.ChannelID)
}

func TestLocationChatPhotoPlainChat(t *testing.T) {
	fd := &FileDescriptor{MediaID: 9, FileType: TypeChatPhoto, ChatID: -555}
	loc, err := fd.Location()
	require.NoError(t, err)
	pf, ok := loc.(*tg.InputPeerPhotoFileLocation)
	require.True(t, ok)
	chat, ok := pf.Peer.(*tg.InputPeerChat)
	require.True(t, ok)
	assert.Equal(t, int64(555), chat.ChatID)
}

func TestLocationUnknownType(t *testing.T) {
	fd := &FileDescriptor{FileType: FileType(99)}
	_, err := fd.Location()
	assert.ErrorIs(t, err, ErrMalformedDescriptor)
}
