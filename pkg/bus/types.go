package bus

const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// Peer identifies the conversation a message belongs to.
type Peer struct {
	Kind string `json:"kind"` // "direct" | "group"
	ID   string `json:"id"`
}

// InboundMessage is the canonical form of one fetched chat event. Channels
// build it from raw gateway payloads; nothing downstream looks at the raw shape.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	MessageID string            `json:"message_id,omitempty"` // empty when the payload carried no id
	ChatID    string            `json:"chat_id"`
	SenderID  string            `json:"sender_id"`
	Content   string            `json:"content"`
	FromMe    bool              `json:"from_me"`
	Peer      Peer              `json:"peer"`
	Timestamp int64             `json:"timestamp,omitempty"` // gateway time, unix millis when known
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (m InboundMessage) IsGroup() bool {
	return m.Peer.Kind == PeerGroup
}

type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	ReplyTo string `json:"reply_to,omitempty"`
}
