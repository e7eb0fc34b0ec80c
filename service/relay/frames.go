package relay

import (
	"encoding/json"
	"strings"

	"github.com/ankit-kumarpr/lastchat/tools/errs"
)

// Client commands.
const (
	CmdIdentify    = "identify"
	CmdJoinGroup   = "join-group"
	CmdLeaveGroup  = "leave-group"
	CmdJoinDirect  = "join-direct"
	CmdLeaveDirect = "leave-direct"
	CmdSendGroup   = "send-group-message"
	CmdSendDirect  = "send-direct-message"
)

// Server events.
const (
	EvtMessage  = "message-received"
	EvtPresence = "presence-changed"
	EvtError    = "error"
)

// Frame is the tagged wire payload for inbound commands. One struct covers
// the whole command set; ParseFrame only checks shape, the handlers validate
// the fields they need.
type Frame struct {
	Type    string   `json:"type"`
	UserID  string   `json:"userId,omitempty"`
	RoomID  string   `json:"roomId,omitempty"`
	PeerID  string   `json:"peerUserId,omitempty"`
	Content *Content `json:"content,omitempty"`
}

// Content is a message body: text, an attachment reference, or both. A
// message with neither is rejected before it reaches storage.
type Content struct {
	Text       string `json:"text,omitempty"`
	Attachment string `json:"attachment,omitempty"`
}

func (c *Content) Empty() bool {
	return c == nil || (strings.TrimSpace(c.Text) == "" && strings.TrimSpace(c.Attachment) == "")
}

// Message is the canonical record returned by the persistence gateway after
// a successful write. It is immutable and only held for the fan-out step.
type Message struct {
	ID         string    `json:"id"`
	Channel    ChannelID `json:"channel"`
	Sender     string    `json:"sender"`
	Text       string    `json:"text,omitempty"`
	Attachment string    `json:"attachment,omitempty"`
	Seq        int64     `json:"seq"`
	CreatedAt  int64     `json:"createdAt"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, errs.ErrMalformedFrame.WrapMsg(err.Error())
	}
	if strings.TrimSpace(f.Type) == "" {
		return nil, errs.ErrMalformedFrame.WrapMsg("missing type")
	}
	return f, nil
}

type messageEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
}

type presenceEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type errorEvent struct {
	Type   string `json:"type"`
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func BuildMessageEvent(m *Message) []byte {
	b, _ := json.Marshal(messageEvent{Type: EvtMessage, Message: m})
	return b
}

func BuildPresenceEvent(user string, online bool) []byte {
	b, _ := json.Marshal(presenceEvent{Type: EvtPresence, UserID: user, IsOnline: online})
	return b
}

func BuildErrorEvent(code int, reason string) []byte {
	b, _ := json.Marshal(errorEvent{Type: EvtError, Code: code, Reason: reason})
	return b
}
