package relay

import (
	"context"
	"hash/fnv"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ankit-kumarpr/lastchat/logger"
	"github.com/ankit-kumarpr/lastchat/tools/errs"
	"github.com/ankit-kumarpr/lastchat/tools/ids"
	"github.com/ankit-kumarpr/lastchat/tools/safe"
)

// MessageStore is the persistence gateway. AppendMessage must be durable on
// return: the relay never shows a message on the wire before the store has
// acknowledged it.
type MessageStore interface {
	AppendMessage(ctx context.Context, ch ChannelID, sender string, content Content) (*Message, error)
}

// DeliverBus relays committed message events between gateway nodes. Nil bus
// means single-node deployment.
type DeliverBus interface {
	PublishDeliver(ctx context.Context, origin string, ch ChannelID, payload []byte) error
	SubscribeDeliver(fn func(origin string, ch ChannelID, payload []byte)) error
}

type Options struct {
	NodeID        string
	SendQueueSize int
	WriteWait     time.Duration
	PingInterval  time.Duration
	PongWait      time.Duration
	MaxFrameBytes int64
}

func (o *Options) norm() {
	if o.NodeID == "" {
		o.NodeID = "gateway_01"
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 64 << 10
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway is the relay dispatcher: it owns the session table, applies
// presence and directory updates, calls the persistence gateway and fans
// committed messages out to subscribed sessions.
type Gateway struct {
	opts      Options
	presence  *Presence
	directory *Directory
	store     MessageStore
	bus       DeliverBus
	disp      *Dispatcher
	fan       *Fanout

	mu       sync.RWMutex
	sessions map[string]*Client // connID -> client

	// Channel send locks serialize persist+fanout so that delivery order to
	// each subscriber equals persistence-acknowledgment order. A fixed shard
	// pool keyed by channel hash keeps memory bounded no matter how many
	// channels the process sees; two channels sharing a shard just serialize
	// their sends. These are not registry locks: presence and directory stay
	// untouched while the store call is in flight.
	sendMu [sendMuShards]sync.Mutex
}

const sendMuShards = 128

func NewGateway(opts Options, store MessageStore, bus DeliverBus) *Gateway {
	opts.norm()
	g := &Gateway{
		opts:      opts,
		presence:  NewPresence(),
		directory: NewDirectory(),
		store:     store,
		bus:       bus,
		disp:      NewDispatcher(),
		fan:       NewFanout(2, 1024),
		sessions:  make(map[string]*Client),
	}
	g.disp.Register(IdentifyHandler{})
	g.disp.Register(JoinGroupHandler{})
	g.disp.Register(LeaveGroupHandler{})
	g.disp.Register(JoinDirectHandler{})
	g.disp.Register(LeaveDirectHandler{})
	g.disp.Register(SendGroupHandler{})
	g.disp.Register(SendDirectHandler{})

	if bus != nil {
		if err := bus.SubscribeDeliver(g.deliverFromPeer); err != nil {
			logger.Errorf("[relay] bus subscribe failed, running single-node: %v", err)
			g.bus = nil
		}
	}
	return g
}

func (g *Gateway) Presence() *Presence   { return g.presence }
func (g *Gateway) Directory() *Directory { return g.directory }

// HandleWS upgrades the request and runs the connection until it closes.
// Identity is NOT taken from the request: the client must send an identify
// command before anything else is accepted.
func (g *Gateway) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[relay] upgrade failed: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), ws, g.opts.SendQueueSize)
	g.mu.Lock()
	g.sessions[client.ConnID] = client
	g.mu.Unlock()
	logger.Infof("[relay] connected conn=%s remote=%s", client.ConnID, ws.RemoteAddr())

	safe.Go(func() { client.writePump(g.opts.WriteWait, g.opts.PingInterval) })
	g.readLoop(client, ws)
	g.closeClient(client)
}

func (g *Gateway) readLoop(client *Client, ws *websocket.Conn) {
	ws.SetReadLimit(g.opts.MaxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[relay] peer closed conn=%s", client.ConnID)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("[relay] read timeout conn=%s", client.ConnID)
			} else {
				logger.Infof("[relay] read err conn=%s: %v", client.ConnID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		g.handleRaw(client, data)
		if client.closed() {
			return
		}
	}
}

// handleRaw decodes and dispatches one inbound frame. Every failure is local
// to this connection: an error event goes back to the origin and the loop
// keeps going.
func (g *Gateway) handleRaw(client *Client, raw []byte) {
	frame, err := ParseFrame(raw)
	if err != nil {
		g.reportError(client, err)
		return
	}

	if frame.Type != CmdIdentify && client.UserID() == "" {
		g.reportError(client, errs.ErrNotIdentified.Wrap())
		return
	}

	ctx := context.Background()
	if err := g.disp.Dispatch(ctx, g, frame, client); err != nil {
		g.reportError(client, err)
	}

	// A concurrent teardown (saturation path, shutdown) may have run while the
	// handler was mutating the registries. Teardown marks the client closed
	// before it detaches, so seeing closed here means any mutation this frame
	// made could have landed after that cleanup; detach again to scrub it.
	if client.closed() {
		g.detach(client)
	}
}

func (g *Gateway) reportError(client *Client, err error) {
	code := errs.CodeOf(err)
	logger.Debugf("[relay] reject conn=%s code=%d err=%v", client.ConnID, code, err)
	_ = client.Enqueue(BuildErrorEvent(code, errs.Unwrap(err).Error()))
}

// sendMessage runs the send protocol on an already-resolved channel:
// validate, persist (no registry lock held across the call), then fan out to
// exactly the channel's subscribers at acknowledgment time. The sender's own
// connection receives the echo like any other subscriber.
func (g *Gateway) sendMessage(ctx context.Context, origin *Client, ch ChannelID, content *Content) error {
	if err := validateContent(content); err != nil {
		return err
	}

	mu := g.channelMu(ch)
	mu.Lock()
	defer mu.Unlock()

	msg, err := g.store.AppendMessage(ctx, ch, origin.UserID(), *content)
	if err != nil {
		logger.Errorf("[relay] append failed channel=%s sender=%s: %v", ch, origin.UserID(), err)
		return errs.ErrStorage.WrapMsg(err.Error())
	}

	payload := BuildMessageEvent(msg)
	g.deliverLocal(ch, payload)

	if g.bus != nil {
		if perr := g.bus.PublishDeliver(ctx, g.opts.NodeID, ch, payload); perr != nil {
			// Local delivery already happened; peers fall back to history.
			logger.Warnf("[relay] bus publish failed channel=%s: %v", ch, perr)
		}
	}
	return nil
}

// deliverLocal pushes a committed message to every local subscriber of the
// channel. A saturated session gets closed rather than allowed to stall the
// others; that one delivery is dropped and never retried.
func (g *Gateway) deliverLocal(ch ChannelID, payload []byte) {
	for _, connID := range g.directory.SubscribersOf(ch) {
		client := g.session(connID)
		if client == nil {
			continue
		}
		if !client.Enqueue(payload) {
			logger.Warnf("[relay] outbound saturated, closing conn=%s user=%s", client.ConnID, client.UserID())
			g.closeClient(client)
		}
	}
}

// deliverFromPeer handles message events relayed by another gateway node.
func (g *Gateway) deliverFromPeer(origin string, ch ChannelID, payload []byte) {
	if origin == g.opts.NodeID {
		return
	}
	mu := g.channelMu(ch)
	mu.Lock()
	defer mu.Unlock()
	g.deliverLocal(ch, payload)
}

// closeClient is the idempotent teardown path. The client is marked closed
// before any registry cleanup: the registry mutexes order that mark against
// in-flight handlers, so a handler that mutates after our cleanup is
// guaranteed to observe closed() afterwards and scrub its own mutation
// (handleRaw). Safe to trigger from the read loop, the fan-out path and
// shutdown at the same time.
func (g *Gateway) closeClient(client *Client) {
	client.teardownOnce.Do(func() {
		client.Close()

		g.mu.Lock()
		delete(g.sessions, client.ConnID)
		g.mu.Unlock()

		g.detach(client)
		logger.Infof("[relay] closed conn=%s", client.ConnID)
	})
}

// detach removes the connection from every registry: channel subscriptions
// first, then presence, then the offline transition if this was the user's
// last connection. Idempotent, so teardown and the handleRaw scrub can both
// run it.
func (g *Gateway) detach(client *Client) {
	g.directory.DropConn(client.ConnID)

	if user := client.UserID(); user != "" {
		if last := g.presence.MarkOffline(user, client.ConnID); last {
			logger.Infof("[relay] user offline user=%s conn=%s", user, client.ConnID)
			g.broadcastPresence(user, false)
		}
	}
}

// broadcastPresence notifies identified sessions of an online/offline
// transition. Delivery is best-effort through the fan-out pool.
func (g *Gateway) broadcastPresence(user string, online bool) {
	payload := BuildPresenceEvent(user, online)

	g.mu.RLock()
	targets := make([]*Client, 0, len(g.sessions))
	for _, client := range g.sessions {
		if client.UserID() == "" {
			continue
		}
		targets = append(targets, client)
	}
	g.mu.RUnlock()

	g.fan.Broadcast(targets, payload)
}

func (g *Gateway) session(connID string) *Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessions[connID]
}

func (g *Gateway) channelMu(ch ChannelID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ch))
	return &g.sendMu[h.Sum32()%sendMuShards]
}

// Shutdown closes every session. New upgrades are expected to be stopped by
// the HTTP layer first.
func (g *Gateway) Shutdown() {
	g.mu.RLock()
	clients := make([]*Client, 0, len(g.sessions))
	for _, c := range g.sessions {
		clients = append(clients, c)
	}
	g.mu.RUnlock()

	for _, c := range clients {
		g.closeClient(c)
	}
	g.fan.Close()
}
