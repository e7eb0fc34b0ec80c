package relay

import "strings"

// ChannelID is the logical destination of a message. Two variants share the
// key space: "g:<roomID>" for group rooms and "d:<userA>|<userB>" for
// one-to-one conversations. Direct keys are canonicalized by sorting the
// pair, so the channel for (A,B) and (B,A) is the same value. The key is a
// pure function of its inputs; nothing is ever "created", which is also why
// there is no create-direct-channel race to guard against.
type ChannelID string

const (
	groupPrefix  = "g:"
	directPrefix = "d:"
	directSep    = "|"
)

func GroupChannel(roomID string) ChannelID {
	return ChannelID(groupPrefix + roomID)
}

func DirectChannel(a, b string) ChannelID {
	if b < a {
		a, b = b, a
	}
	return ChannelID(directPrefix + a + directSep + b)
}

func (c ChannelID) IsGroup() bool {
	return strings.HasPrefix(string(c), groupPrefix)
}

func (c ChannelID) IsDirect() bool {
	return strings.HasPrefix(string(c), directPrefix)
}

// RoomID returns the room part of a group channel, or "" for direct ones.
func (c ChannelID) RoomID() string {
	if !c.IsGroup() {
		return ""
	}
	return string(c[len(groupPrefix):])
}

// Participants returns the two user ids of a direct channel in canonical
// order, or ("", "") for group channels.
func (c ChannelID) Participants() (string, string) {
	if !c.IsDirect() {
		return "", ""
	}
	pair := strings.SplitN(string(c[len(directPrefix):]), directSep, 2)
	if len(pair) != 2 {
		return "", ""
	}
	return pair[0], pair[1]
}

func (c ChannelID) String() string { return string(c) }
