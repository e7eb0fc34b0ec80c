package natsx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ankit-kumarpr/lastchat/logger"
	"github.com/ankit-kumarpr/lastchat/service/relay"
	"github.com/ankit-kumarpr/lastchat/tools/errs"
)

const deliverSubject = "lastchat.deliver"

// Bus relays committed message events between gateway nodes over core NATS.
// Loss here is acceptable: a message a peer node misses is still in storage
// and reachable through history.
type Bus struct {
	nc *nats.Conn
}

var _ relay.DeliverBus = (*Bus)(nil)

func Dial(url string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("lastchat-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[natsx] disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("[natsx] reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect")
	}
	return &Bus{nc: nc}, nil
}

type deliverEnvelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

func (b *Bus) PublishDeliver(_ context.Context, origin string, ch relay.ChannelID, payload []byte) error {
	env := deliverEnvelope{Origin: origin, Channel: ch.String(), Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return errs.Wrap(err)
	}
	return errs.WrapMsg(b.nc.Publish(deliverSubject, data), "nats publish")
}

func (b *Bus) SubscribeDeliver(fn func(origin string, ch relay.ChannelID, payload []byte)) error {
	_, err := b.nc.Subscribe(deliverSubject, func(m *nats.Msg) {
		var env deliverEnvelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			logger.Warnf("[natsx] bad deliver envelope: %v", err)
			return
		}
		fn(env.Origin, relay.ChannelID(env.Channel), env.Payload)
	})
	return errs.WrapMsg(err, "nats subscribe")
}

func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
