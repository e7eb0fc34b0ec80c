package relay

import (
	"context"

	"github.com/ankit-kumarpr/lastchat/tools/errs"
)

// Handler processes one command type. Handlers run on the connection's read
// goroutine, so per-connection command handling is naturally serialized.
type Handler interface {
	Type() string
	Handle(ctx context.Context, g *Gateway, f *Frame, c *Client) error
}

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Type()] = h }

func (d *Dispatcher) Dispatch(ctx context.Context, g *Gateway, f *Frame, c *Client) error {
	h, ok := d.handlers[f.Type]
	if !ok {
		return errs.ErrUnknownCommand.WrapMsg(f.Type)
	}
	return h.Handle(ctx, g, f, c)
}
