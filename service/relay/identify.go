package relay

import (
	"context"
	"strings"

	"github.com/ankit-kumarpr/lastchat/logger"
	"github.com/ankit-kumarpr/lastchat/tools/errs"
)

// IdentifyHandler binds the connection to a user identity and moves the
// session to Identified. The binding is immutable for the connection's
// lifetime.
type IdentifyHandler struct{}

func (IdentifyHandler) Type() string { return CmdIdentify }

func (IdentifyHandler) Handle(_ context.Context, g *Gateway, f *Frame, c *Client) error {
	user := strings.TrimSpace(f.UserID)
	if user == "" {
		return errs.ErrMalformedFrame.WrapMsg("identify requires userId")
	}
	if !c.bind(user) {
		return errs.ErrAlreadyBound.Wrap()
	}

	if first := g.presence.MarkOnline(user, c.ConnID); first {
		logger.Infof("[relay] user online user=%s conn=%s", user, c.ConnID)
		g.broadcastPresence(user, true)
	}
	return nil
}
