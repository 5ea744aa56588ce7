package channels

import (
	"context"
	"strings"

	"github.com/tinyland-inc/zumo/pkg/bus"
)

// Channel is a polled chat gateway. Poll returns the messages the gateway
// currently reports as recent; callers deduplicate. Send delivers one reply.
type Channel interface {
	Name() string
	Poll(ctx context.Context) ([]bus.InboundMessage, error)
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

type BaseChannel struct {
	name string
}

func NewBaseChannel(name string) *BaseChannel {
	return &BaseChannel{name: name}
}

func (c *BaseChannel) Name() string {
	return c.name
}

// BuildMessage assembles the canonical record and derives the peer kind.
func (c *BaseChannel) BuildMessage(
	messageID, senderID, chatID, content string,
	fromMe, isGroup bool,
	timestamp int64,
	metadata map[string]string,
) bus.InboundMessage {
	peer := bus.Peer{Kind: bus.PeerDirect, ID: chatID}
	if isGroup {
		peer.Kind = bus.PeerGroup
	}
	if senderID == "" && !isGroup {
		senderID = chatID
	}
	return bus.InboundMessage{
		Channel:   c.name,
		MessageID: messageID,
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		FromMe:    fromMe,
		Peer:      peer,
		Timestamp: timestamp,
		Metadata:  metadata,
	}
}

var chatIDSuffixes = []string{"@c.us", "@s.whatsapp.net", "@g.us", "@lid", "@broadcast"}

// NormalizeChatID strips the address decoration gateways append to chat ids
// so the result can be used as a send destination.
func NormalizeChatID(chatID string) string {
	id := strings.TrimSpace(chatID)
	for _, suffix := range chatIDSuffixes {
		if strings.HasSuffix(strings.ToLower(id), suffix) {
			id = id[:len(id)-len(suffix)]
			break
		}
	}
	return strings.TrimSpace(id)
}

// IsGroupChatID reports whether a chat id follows the group-channel convention.
func IsGroupChatID(chatID string) bool {
	id := strings.ToLower(strings.TrimSpace(chatID))
	return strings.HasSuffix(id, "@g.us") || strings.Contains(id, "group")
}
