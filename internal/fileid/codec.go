package fileid

import (
	"bytes"
	"encoding/gob"

	"github.com/gotd/td/tg"
)

func init() {
	gob.Register(&FileDescriptor{})
}

// FromMedia extracts a FileDescriptor from a resolved message's media, the
// same switch the teacher's utils.FileFromMedia performs. Only documents
// and photos are resolved; any other media kind (chat photos included)
// fails with ErrMalformedDescriptor.
func FromMedia(media tg.MessageMediaClass, dcID int) (*FileDescriptor, error) {
	switch m := media.(type) {
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.AsNotEmpty()
		if !ok {
			return nil, ErrMalformedDescriptor
		}
		return fromDocument(doc, dcID), nil
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.AsNotEmpty()
		if !ok {
			return nil, ErrMalformedDescriptor
		}
		return fromPhoto(photo, dcID)
	default:
		return nil, ErrMalformedDescriptor
	}
}

// Decode parses the opaque byte-string descriptor produced by Encode back
// into a FileDescriptor. Pure, side-effect-free; fails with
// ErrMalformedDescriptor on an unknown type tag, exactly as spec.md §4.1
// requires.
func Decode(raw []byte) (*FileDescriptor, error) {
	var fd FileDescriptor
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&fd); err != nil {
		return nil, ErrMalformedDescriptor
	}
	switch fd.FileType {
	case TypeDocument, TypePhoto, TypeChatPhoto:
	default:
		return nil, ErrMalformedDescriptor
	}
	return &fd, nil
}

// Encode produces the opaque descriptor bytes the bot embeds in the public
// URL it replies with. The wire format is intentionally opaque to clients:
// only this package needs to understand it.
func Encode(fd *FileDescriptor) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(fd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Location builds the tg InputLocation value appropriate to fd.FileType,
// per spec.md §4.1's peer-resolution rules for chat photos:
//   - chat_id > 0                -> User(chat_id, chat_access_hash)
//   - chat_id <= 0, hash != 0    -> Channel(channel_id_from(chat_id), hash)
//   - chat_id < 0, hash == 0     -> Chat(-chat_id)
//   - chat_id == 0, hash == 0    -> error (no resolvable peer)
func (fd *FileDescriptor) Location() (tg.InputFileLocationClass, error) {
	switch fd.FileType {
	case TypeDocument:
		return &tg.InputDocumentFileLocation{
			ID:            fd.MediaID,
			AccessHash:    fd.AccessHash,
			FileReference: fd.FileReference,
			ThumbSize:     fd.ThumbSize,
		}, nil
	case TypePhoto:
		return &tg.InputPhotoFileLocation{
			ID:            fd.MediaID,
			AccessHash:    fd.AccessHash,
			FileReference: fd.FileReference,
			ThumbSize:     fd.ThumbSize,
		}, nil
	case TypeChatPhoto:
		peer, err := fd.peer()
		if err != nil {
			return nil, err
		}
		return &tg.InputPeerPhotoFileLocation{
			Big:     fd.Big,
			Peer:    peer,
			PhotoID: fd.MediaID,
		}, nil
	default:
		return nil, ErrMalformedDescriptor
	}
}

func (fd *FileDescriptor) peer() (tg.InputPeerClass, error) {
	if fd.ChatID > 0 {
		return &tg.InputPeerUser{UserID: fd.ChatID, AccessHash: fd.ChatAccessHash}, nil
	}
	if fd.ChatAccessHash != 0 {
		return &tg.InputPeerChannel{ChannelID: channelIDFrom(fd.ChatID), AccessHash: fd.ChatAccessHash}, nil
	}
	if fd.ChatID != 0 {
		return &tg.InputPeerChat{ChatID: -fd.ChatID}, nil
	}
	return nil, errUnsupportedPeer
}

// botAPIChannelOffset is the magnitude Telegram's Bot API adds to a bare
// channel id to form its "-100<id>" representation.
const botAPIChannelOffset = 1_000_000_000_000

// channelIDFrom recovers the bare channel id from a BotAPI-style negative
// chat id (-100<channel_id>).
func channelIDFrom(chatID int64) int64 {
	raw := -chatID - botAPIChannelOffset
	if raw <= 0 {
		return -chatID
	}
	return raw
}
