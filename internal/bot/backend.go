package bot

import (
	"context"

	"github.com/gotd/td/tg"
	"github.com/pkg/errors"
)

// Backend adapts a ClientIdentity into propcache.Backend, resolving a
// stored message id against the configured storage channel.
type Backend struct {
	identity         *ClientIdentity
	storageChannelID int64
}

// NewBackend builds a propcache.Backend bound to identity and the
// configured storage channel (spec.md's STORAGE_CHANNEL_ID).
func NewBackend(identity *ClientIdentity, storageChannelID int64) *Backend {
	return &Backend{identity: identity, storageChannelID: storageChannelID}
}

// ResolveMessage fetches the stored message and extracts its media, the
// generalization of the teacher's utils.FileFromMessageAndChannel used by
// FilePropCache on a miss.
func (b *Backend) ResolveMessage(ctx context.Context, msgID int) (tg.MessageMediaClass, int, error) {
	api := b.identity.HomeAPI()

	channel, err := b.resolveChannel(ctx)
	if err != nil {
		return nil, 0, errors.Wrap(err, "bot: resolve storage channel")
	}

	req := tg.ChannelsGetMessagesRequest{
		Channel: channel,
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: msgID}},
	}
	res, err := api.ChannelsGetMessages(ctx, &req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "bot: get message")
	}

	messages, ok := res.(*tg.MessagesChannelMessages)
	if !ok || len(messages.Messages) == 0 {
		return nil, 0, errors.New("bot: message not found in storage channel")
	}

	message, ok := messages.Messages[0].(*tg.Message)
	if !ok || message.Media == nil {
		return nil, 0, errors.New("bot: message no longer carries media")
	}

	return message.Media, b.identity.HomeDCID(), nil
}

func (b *Backend) resolveChannel(ctx context.Context) (*tg.InputChannel, error) {
	api := b.identity.HomeAPI()
	rawChannelID := -b.storageChannelID - botAPIChannelOffset
	if rawChannelID <= 0 {
		rawChannelID = -b.storageChannelID
	}

	channels, err := api.ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: rawChannelID}})
	if err != nil {
		return nil, err
	}
	if len(channels.GetChats()) == 0 {
		return nil, errors.New("no such channel")
	}
	ch, ok := channels.GetChats()[0].(*tg.Channel)
	if !ok {
		return nil, errors.New("unexpected chat type for storage channel")
	}
	return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
}

// botAPIChannelOffset mirrors internal/fileid's unexported constant of the
// same name (BotAPI's -100<id> convention).
const botAPIChannelOffset = 1_000_000_000_000
