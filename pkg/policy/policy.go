// Package policy decides whether an inbound message earns a reply.
package policy

import (
	"strings"

	"github.com/tinyland-inc/zumo/pkg/bus"
	"github.com/tinyland-inc/zumo/pkg/config"
)

type Reason string

const (
	ReasonOK                 Reason = "ok"
	ReasonSelfEcho           Reason = "self_echo"
	ReasonNoKeyword          Reason = "no_keyword"
	ReasonGroupNotPrivileged Reason = "group_not_privileged"
)

type Decision struct {
	Respond    bool
	Reason     Reason
	Privileged bool // the configured master matched the sender
}

type Policy struct {
	keyword  string
	masterID string
}

func New(cfg config.PolicyConfig) *Policy {
	return &Policy{
		keyword:  strings.ToLower(strings.TrimSpace(cfg.Keyword)),
		masterID: strings.ToLower(strings.TrimSpace(cfg.MasterID)),
	}
}

func (p *Policy) Evaluate(msg bus.InboundMessage) Decision {
	return Evaluate(msg, p.keyword, p.masterID)
}

// Evaluate applies the admission rules in order; the first match wins:
// self echo, missing keyword, group without the master, otherwise ok.
// An empty masterID never admits group messages.
func Evaluate(msg bus.InboundMessage, keyword, masterID string) Decision {
	if msg.FromMe {
		return Decision{Reason: ReasonSelfEcho}
	}

	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" || !strings.Contains(strings.ToLower(msg.Content), keyword) {
		return Decision{Reason: ReasonNoKeyword}
	}

	privileged := isMaster(msg, masterID)
	if msg.IsGroup() && !privileged {
		return Decision{Reason: ReasonGroupNotPrivileged}
	}
	return Decision{Respond: true, Reason: ReasonOK, Privileged: privileged}
}

// isMaster matches against the sender, or the chat id when the gateway
// exposed no distinct sender.
func isMaster(msg bus.InboundMessage, masterID string) bool {
	masterID = strings.ToLower(strings.TrimSpace(masterID))
	if masterID == "" {
		return false
	}
	subject := msg.SenderID
	if strings.TrimSpace(subject) == "" {
		subject = msg.ChatID
	}
	return strings.Contains(strings.ToLower(subject), masterID)
}
