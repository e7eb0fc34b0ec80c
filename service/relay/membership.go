package relay

import (
	"context"
	"strings"

	"github.com/ankit-kumarpr/lastchat/tools/errs"
)

// Join/leave handlers. All of them require an identified session. Joining a
// direct channel whose peer has never joined is valid: the channel exists
// the moment either side references it.

type JoinGroupHandler struct{}

func (JoinGroupHandler) Type() string { return CmdJoinGroup }

func (JoinGroupHandler) Handle(_ context.Context, g *Gateway, f *Frame, c *Client) error {
	ch, err := groupTarget(f)
	if err != nil {
		return err
	}
	g.directory.Join(ch, c.UserID(), c.ConnID)
	return nil
}

type LeaveGroupHandler struct{}

func (LeaveGroupHandler) Type() string { return CmdLeaveGroup }

func (LeaveGroupHandler) Handle(_ context.Context, g *Gateway, f *Frame, c *Client) error {
	ch, err := groupTarget(f)
	if err != nil {
		return err
	}
	g.directory.Leave(ch, c.ConnID)
	return nil
}

type JoinDirectHandler struct{}

func (JoinDirectHandler) Type() string { return CmdJoinDirect }

func (JoinDirectHandler) Handle(_ context.Context, g *Gateway, f *Frame, c *Client) error {
	ch, err := directTarget(f, c)
	if err != nil {
		return err
	}
	g.directory.Join(ch, c.UserID(), c.ConnID)
	return nil
}

type LeaveDirectHandler struct{}

func (LeaveDirectHandler) Type() string { return CmdLeaveDirect }

func (LeaveDirectHandler) Handle(_ context.Context, g *Gateway, f *Frame, c *Client) error {
	ch, err := directTarget(f, c)
	if err != nil {
		return err
	}
	g.directory.Leave(ch, c.ConnID)
	return nil
}

func groupTarget(f *Frame) (ChannelID, error) {
	roomID := strings.TrimSpace(f.RoomID)
	if roomID == "" {
		return "", errs.ErrMalformedFrame.WrapMsg("roomId is required")
	}
	return GroupChannel(roomID), nil
}

func directTarget(f *Frame, c *Client) (ChannelID, error) {
	peer := strings.TrimSpace(f.PeerID)
	if peer == "" {
		return "", errs.ErrMalformedFrame.WrapMsg("peerUserId is required")
	}
	return DirectChannel(c.UserID(), peer), nil
}
