package relay

import (
	"context"

	"github.com/ankit-kumarpr/lastchat/tools/errs"
)

// Send handlers run the send-message protocol: validate, persist, fan out.
// A storage failure is reported to the originating connection only; nothing
// is broadcast and the dispatcher keeps running.

type SendGroupHandler struct{}

func (SendGroupHandler) Type() string { return CmdSendGroup }

func (SendGroupHandler) Handle(ctx context.Context, g *Gateway, f *Frame, c *Client) error {
	ch, err := groupTarget(f)
	if err != nil {
		return err
	}
	return g.sendMessage(ctx, c, ch, f.Content)
}

type SendDirectHandler struct{}

func (SendDirectHandler) Type() string { return CmdSendDirect }

func (SendDirectHandler) Handle(ctx context.Context, g *Gateway, f *Frame, c *Client) error {
	ch, err := directTarget(f, c)
	if err != nil {
		return err
	}
	return g.sendMessage(ctx, c, ch, f.Content)
}

func validateContent(content *Content) error {
	if content.Empty() {
		return errs.ErrEmptyMessage.Wrap()
	}
	return nil
}
