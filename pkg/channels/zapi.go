package channels

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tinyland-inc/zumo/pkg/bus"
	"github.com/tinyland-inc/zumo/pkg/config"
	"github.com/tinyland-inc/zumo/pkg/logger"
	"github.com/tinyland-inc/zumo/pkg/transport"
	"github.com/tinyland-inc/zumo/pkg/utils"
)

const ZAPIChannelName = "zapi"

var ErrNoDestination = errors.New("channels: message has no destination")

// GatewayClient is the slice of the transport client the channel uses.
type GatewayClient interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Post(ctx context.Context, path string, body any) error
}

// rawClient adapts transport.Client, whose Get returns json.RawMessage.
type rawClient struct {
	c *transport.Client
}

func (r rawClient) Get(ctx context.Context, path string) ([]byte, error) {
	return r.c.Get(ctx, path)
}

func (r rawClient) Post(ctx context.Context, path string, body any) error {
	return r.c.Post(ctx, path, body)
}

// NewZAPIClient builds the retrying client rooted at the instance URL,
// carrying the optional Client-Token security header.
func NewZAPIClient(cfg config.GatewayConfig, opts ...transport.Option) *transport.Client {
	opts = append([]transport.Option{transport.WithHeader("Client-Token", cfg.ClientToken)}, opts...)
	return transport.NewClient(cfg.InstanceURL(), opts...)
}

type ZAPIChannel struct {
	*BaseChannel
	client    GatewayClient
	fetchPath string
	sendPath  string
}

func NewZAPIChannel(cfg config.GatewayConfig, client *transport.Client) *ZAPIChannel {
	return newZAPIChannel(cfg, rawClient{c: client})
}

func newZAPIChannel(cfg config.GatewayConfig, client GatewayClient) *ZAPIChannel {
	fetchPath := cfg.FetchPath
	if fetchPath == "" {
		fetchPath = "/last-received-messages"
	}
	sendPath := cfg.SendPath
	if sendPath == "" {
		sendPath = "/send-text"
	}
	return &ZAPIChannel{
		BaseChannel: NewBaseChannel(ZAPIChannelName),
		client:      client,
		fetchPath:   fetchPath,
		sendPath:    sendPath,
	}
}

// Poll fetches the recent messages and returns them oldest first. A body that
// is not a JSON array counts as an empty fetch.
func (c *ZAPIChannel) Poll(ctx context.Context) ([]bus.InboundMessage, error) {
	body, err := c.client.Get(ctx, c.fetchPath)
	if err != nil {
		return nil, err
	}
	return c.ParseMessages(body), nil
}

// ParseMessages is the single place raw gateway payloads are inspected.
func (c *ZAPIChannel) ParseMessages(body []byte) []bus.InboundMessage {
	if !gjson.ValidBytes(body) {
		logger.WarnCF("zapi", "Fetch returned invalid JSON", map[string]any{
			"preview": utils.Truncate(string(body), 80),
		})
		return nil
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		logger.DebugCF("zapi", "Fetch returned a non-array body", map[string]any{
			"type": parsed.Type.String(),
		})
		return nil
	}

	var msgs []bus.InboundMessage
	parsed.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		msgs = append(msgs, c.parseMessage(item))
		return true
	})

	slices.SortStableFunc(msgs, func(a, b bus.InboundMessage) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return msgs
}

func (c *ZAPIChannel) parseMessage(item gjson.Result) bus.InboundMessage {
	id := firstString(item, "id", "messageId")
	chatID := firstString(item, "chatId", "remoteJid", "phone")
	content := firstString(item, "body", "text.message", "text", "message")
	author := firstString(item, "author", "participantPhone", "participant", "senderPhone")

	isGroup := item.Get("isGroup").Bool() || IsGroupChatID(chatID)

	var timestamp int64
	for _, path := range []string{"momment", "timestamp"} {
		if v := item.Get(path); v.Exists() {
			timestamp = v.Int()
			break
		}
	}

	metadata := map[string]string{}
	if name := firstString(item, "senderName", "pushName"); name != "" {
		metadata["sender_name"] = name
	}
	if name := firstString(item, "chatName"); name != "" {
		metadata["chat_name"] = name
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	return c.BuildMessage(id, author, chatID, content, item.Get("fromMe").Bool(), isGroup, timestamp, metadata)
}

// firstString returns the first non-empty scalar found at paths. Objects and
// arrays are skipped so {"text":{"message":"..."}} falls through correctly.
func firstString(item gjson.Result, paths ...string) string {
	for _, path := range paths {
		v := item.Get(path)
		switch v.Type {
		case gjson.String, gjson.Number:
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// Send delivers msg.Content to the normalized chat id.
func (c *ZAPIChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	phone := NormalizeChatID(msg.ChatID)
	if phone == "" {
		return ErrNoDestination
	}

	payload := map[string]string{
		"phone":   phone,
		"message": msg.Content,
	}
	if err := c.client.Post(ctx, c.sendPath, payload); err != nil {
		return fmt.Errorf("zapi send to %s: %w", phone, err)
	}
	return nil
}
