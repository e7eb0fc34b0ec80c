package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankit-kumarpr/lastchat/tools/errs"
)

// fakeStore acknowledges appends in memory with a per-channel sequence. Set
// fail to make every append error out.
type fakeStore struct {
	mu       sync.Mutex
	seq      map[ChannelID]int64
	appended []*Message
	fail     error
}

func (s *fakeStore) AppendMessage(_ context.Context, ch ChannelID, sender string, content Content) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	if s.seq == nil {
		s.seq = make(map[ChannelID]int64)
	}
	s.seq[ch]++
	m := &Message{
		ID:         fmt.Sprintf("m%d", len(s.appended)+1),
		Channel:    ch,
		Sender:     sender,
		Text:       content.Text,
		Attachment: content.Attachment,
		Seq:        s.seq[ch],
		CreatedAt:  time.Now().UnixMilli(),
	}
	s.appended = append(s.appended, m)
	return m, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appended)
}

type publishedEvent struct {
	origin  string
	channel ChannelID
}

type fakeBus struct {
	mu        sync.Mutex
	published []publishedEvent
	fn        func(origin string, ch ChannelID, payload []byte)
}

func (b *fakeBus) PublishDeliver(_ context.Context, origin string, ch ChannelID, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedEvent{origin: origin, channel: ch})
	return nil
}

func (b *fakeBus) SubscribeDeliver(fn func(origin string, ch ChannelID, payload []byte)) error {
	b.fn = fn
	return nil
}

// event is the union of every server event shape, for test decoding.
type event struct {
	Type     string   `json:"type"`
	Message  *Message `json:"message,omitempty"`
	UserID   string   `json:"userId,omitempty"`
	IsOnline bool     `json:"isOnline,omitempty"`
	Code     int      `json:"code,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

func newTestGateway(store MessageStore, bus DeliverBus) *Gateway {
	return NewGateway(Options{NodeID: "node-a", SendQueueSize: 64}, store, bus)
}

// connect registers a session the way HandleWS would, minus the socket. The
// writer goroutine never starts, so everything delivered to the client stays
// in its send queue for the test to read.
func connect(g *Gateway, connID string) *Client {
	c := NewClient(connID, nil, g.opts.SendQueueSize)
	g.mu.Lock()
	g.sessions[c.ConnID] = c
	g.mu.Unlock()
	return c
}

func identify(t *testing.T, g *Gateway, c *Client, user string) {
	t.Helper()
	g.handleRaw(c, []byte(`{"type":"identify","userId":"`+user+`"}`))
	require.Equal(t, user, c.UserID())
}

// recvTyped reads events off the client queue, skipping other event types,
// until one of the wanted type arrives.
func recvTyped(t *testing.T, c *Client, typ string) event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.send:
			var ev event
			require.NoError(t, json.Unmarshal(raw, &ev))
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event on conn %s", typ, c.ConnID)
		}
	}
}

// pendingOfType drains whatever is queued right now and counts events of the
// given type. Used for "nothing was delivered" assertions.
func pendingOfType(t *testing.T, c *Client, typ string) int {
	t.Helper()
	n := 0
	for {
		select {
		case raw := <-c.send:
			var ev event
			require.NoError(t, json.Unmarshal(raw, &ev))
			if ev.Type == typ {
				n++
			}
		default:
			return n
		}
	}
}

func TestCommandBeforeIdentifyRejected(t *testing.T) {
	g := newTestGateway(&fakeStore{}, nil)
	c := connect(g, "c1")

	g.handleRaw(c, []byte(`{"type":"join-group","roomId":"r1"}`))

	ev := recvTyped(t, c, EvtError)
	assert.Equal(t, errs.NotIdentifiedError, ev.Code)
	assert.Empty(t, g.directory.SubscribersOf(GroupChannel("r1")))
	assert.False(t, c.closed(), "protocol errors must not close the connection")
}

func TestIdentifyBindsOnce(t *testing.T) {
	g := newTestGateway(&fakeStore{}, nil)
	c := connect(g, "c1")

	identify(t, g, c, "alice")
	assert.True(t, g.presence.IsOnline("alice"))

	// same identity again is accepted silently
	g.handleRaw(c, []byte(`{"type":"identify","userId":"alice"}`))
	assert.Equal(t, 0, pendingOfType(t, c, EvtError))

	// identity switch is refused and the binding survives
	g.handleRaw(c, []byte(`{"type":"identify","userId":"mallory"}`))
	ev := recvTyped(t, c, EvtError)
	assert.Equal(t, errs.AlreadyBoundError, ev.Code)
	assert.Equal(t, "alice", c.UserID())
	assert.False(t, g.presence.IsOnline("mallory"))
}

func TestUnknownCommand(t *testing.T) {
	g := newTestGateway(&fakeStore{}, nil)
	c := connect(g, "c1")
	identify(t, g, c, "alice")

	g.handleRaw(c, []byte(`{"type":"make-coffee"}`))
	ev := recvTyped(t, c, EvtError)
	assert.Equal(t, errs.UnknownCommandError, ev.Code)
}

func TestGroupSendFansOutToSubscribers(t *testing.T) {
	store := &fakeStore{}
	bus := &fakeBus{}
	g := newTestGateway(store, bus)

	a := connect(g, "cA")
	b := connect(g, "cB")
	identify(t, g, a, "alice")
	identify(t, g, b, "bob")
	g.handleRaw(a, []byte(`{"type":"join-group","roomId":"r1"}`))
	g.handleRaw(b, []byte(`{"type":"join-group","roomId":"r1"}`))

	g.handleRaw(a, []byte(`{"type":"send-group-message","roomId":"r1","content":{"text":"hi"}}`))

	got := recvTyped(t, a, EvtMessage)
	require.NotNil(t, got.Message)
	assert.Equal(t, "alice", got.Message.Sender)
	assert.Equal(t, "hi", got.Message.Text)
	assert.Equal(t, GroupChannel("r1"), got.Message.Channel)
	assert.Equal(t, int64(1), got.Message.Seq)

	echo := recvTyped(t, b, EvtMessage)
	assert.Equal(t, got.Message, echo.Message, "sender echo and subscriber copy must be identical")

	// exactly one delivery each
	assert.Equal(t, 0, pendingOfType(t, a, EvtMessage))
	assert.Equal(t, 0, pendingOfType(t, b, EvtMessage))

	require.Len(t, bus.published, 1)
	assert.Equal(t, "node-a", bus.published[0].origin)
	assert.Equal(t, GroupChannel("r1"), bus.published[0].channel)
}

func TestStorageFailureReachesSenderOnly(t *testing.T) {
	store := &fakeStore{}
	g := newTestGateway(store, nil)

	a := connect(g, "cA")
	b := connect(g, "cB")
	identify(t, g, a, "alice")
	identify(t, g, b, "bob")
	g.handleRaw(a, []byte(`{"type":"join-group","roomId":"r1"}`))
	g.handleRaw(b, []byte(`{"type":"join-group","roomId":"r1"}`))

	store.fail = fmt.Errorf("mongo down")
	g.handleRaw(a, []byte(`{"type":"send-group-message","roomId":"r1","content":{"text":"hi"}}`))

	ev := recvTyped(t, a, EvtError)
	assert.Equal(t, errs.StorageWriteError, ev.Code)
	assert.Equal(t, 0, pendingOfType(t, b, EvtMessage))
	assert.Equal(t, 0, pendingOfType(t, b, EvtError))
	assert.False(t, a.closed())
}

func TestDirectSendWithOfflinePeer(t *testing.T) {
	store := &fakeStore{}
	g := newTestGateway(store, nil)

	a := connect(g, "cA")
	identify(t, g, a, "alice")
	g.handleRaw(a, []byte(`{"type":"join-direct","peerUserId":"bob"}`))

	g.handleRaw(a, []byte(`{"type":"send-direct-message","peerUserId":"bob","content":{"text":"you there?"}}`))

	echo := recvTyped(t, a, EvtMessage)
	assert.Equal(t, DirectChannel("alice", "bob"), echo.Message.Channel)
	assert.Equal(t, "you there?", echo.Message.Text)
	assert.Equal(t, 1, store.count(), "message persists even with nobody else subscribed")
}

func TestEmptyMessageRejected(t *testing.T) {
	store := &fakeStore{}
	g := newTestGateway(store, nil)
	a := connect(g, "cA")
	identify(t, g, a, "alice")
	g.handleRaw(a, []byte(`{"type":"join-group","roomId":"r1"}`))

	for _, raw := range []string{
		`{"type":"send-group-message","roomId":"r1"}`,
		`{"type":"send-group-message","roomId":"r1","content":{}}`,
		`{"type":"send-group-message","roomId":"r1","content":{"text":"   "}}`,
	} {
		g.handleRaw(a, []byte(raw))
		ev := recvTyped(t, a, EvtError)
		assert.Equal(t, errs.EmptyMessageError, ev.Code)
	}
	assert.Equal(t, 0, store.count())
}

func TestSendOrderMatchesAppendOrder(t *testing.T) {
	store := &fakeStore{}
	g := newTestGateway(store, nil)

	a := connect(g, "cA")
	b := connect(g, "cB")
	identify(t, g, a, "alice")
	identify(t, g, b, "bob")
	g.handleRaw(a, []byte(`{"type":"join-group","roomId":"r1"}`))
	g.handleRaw(b, []byte(`{"type":"join-group","roomId":"r1"}`))

	for i := 1; i <= 3; i++ {
		g.handleRaw(a, []byte(fmt.Sprintf(`{"type":"send-group-message","roomId":"r1","content":{"text":"m%d"}}`, i)))
	}

	for i := 1; i <= 3; i++ {
		ev := recvTyped(t, b, EvtMessage)
		assert.Equal(t, fmt.Sprintf("m%d", i), ev.Message.Text)
		assert.Equal(t, int64(i), ev.Message.Seq)
	}
}

func TestTeardownIsIdempotentAndComplete(t *testing.T) {
	g := newTestGateway(&fakeStore{}, nil)

	a := connect(g, "cA")
	watcher := connect(g, "cW")
	identify(t, g, a, "alice")
	identify(t, g, watcher, "watcher")
	g.handleRaw(a, []byte(`{"type":"join-group","roomId":"r1"}`))
	g.handleRaw(a, []byte(`{"type":"join-direct","peerUserId":"bob"}`))

	// settle presence noise from the identify phase
	recvTyped(t, watcher, EvtPresence)

	g.closeClient(a)
	g.closeClient(a) // second teardown must be a no-op

	assert.Nil(t, g.session("cA"))
	assert.Empty(t, g.directory.SubscribersOf(GroupChannel("r1")))
	assert.Empty(t, g.directory.SubscribersOf(DirectChannel("alice", "bob")))
	assert.False(t, g.presence.IsOnline("alice"))
	assert.True(t, a.closed())

	off := recvTyped(t, watcher, EvtPresence)
	assert.Equal(t, "alice", off.UserID)
	assert.False(t, off.IsOnline)
	assert.Equal(t, 0, pendingOfType(t, watcher, EvtPresence), "one teardown, one offline event")
}

func TestMultiDevicePresence(t *testing.T) {
	g := newTestGateway(&fakeStore{}, nil)

	watcher := connect(g, "cW")
	identify(t, g, watcher, "watcher")
	self := recvTyped(t, watcher, EvtPresence)
	assert.Equal(t, "watcher", self.UserID)

	d1 := connect(g, "c1")
	d2 := connect(g, "c2")
	identify(t, g, d1, "alice")

	on := recvTyped(t, watcher, EvtPresence)
	assert.Equal(t, "alice", on.UserID)
	assert.True(t, on.IsOnline)

	// second device: already online, no transition
	identify(t, g, d2, "alice")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, pendingOfType(t, watcher, EvtPresence))

	// first device drops: still online through the second one
	g.closeClient(d1)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, g.presence.IsOnline("alice"))
	assert.Equal(t, 0, pendingOfType(t, watcher, EvtPresence))

	// last device drops: offline transition fires
	g.closeClient(d2)
	off := recvTyped(t, watcher, EvtPresence)
	assert.Equal(t, "alice", off.UserID)
	assert.False(t, off.IsOnline)
}

func TestSaturatedSessionIsClosed(t *testing.T) {
	g := newTestGateway(&fakeStore{}, nil)
	ch := GroupChannel("r1")

	slow := NewClient("slow", nil, 1)
	g.mu.Lock()
	g.sessions[slow.ConnID] = slow
	g.mu.Unlock()
	require.True(t, slow.bind("slowpoke"))
	g.presence.MarkOnline("slowpoke", slow.ConnID)
	g.directory.Join(ch, "slowpoke", slow.ConnID)

	require.True(t, slow.Enqueue([]byte(`{"type":"noise"}`)))

	g.deliverLocal(ch, BuildPresenceEvent("whoever", true))

	assert.True(t, slow.closed())
	assert.Nil(t, g.session("slow"))
	assert.Empty(t, g.directory.SubscribersOf(ch))
	assert.False(t, g.presence.IsOnline("slowpoke"))
}

func TestPeerDeliverySkipsOwnOrigin(t *testing.T) {
	bus := &fakeBus{}
	g := newTestGateway(&fakeStore{}, bus)
	require.NotNil(t, bus.fn)

	b := connect(g, "cB")
	identify(t, g, b, "bob")
	g.handleRaw(b, []byte(`{"type":"join-group","roomId":"r1"}`))

	payload := BuildMessageEvent(&Message{ID: "m1", Channel: GroupChannel("r1"), Sender: "alice", Text: "from afar", Seq: 9})

	bus.fn("node-a", GroupChannel("r1"), payload) // own origin, already delivered locally
	assert.Equal(t, 0, pendingOfType(t, b, EvtMessage))

	bus.fn("node-b", GroupChannel("r1"), payload)
	ev := recvTyped(t, b, EvtMessage)
	assert.Equal(t, "from afar", ev.Message.Text)
	assert.Equal(t, int64(9), ev.Message.Seq)
}

func TestChannelMuStableAndBounded(t *testing.T) {
	g := newTestGateway(&fakeStore{}, nil)

	assert.Same(t, g.channelMu(GroupChannel("r1")), g.channelMu(GroupChannel("r1")))

	distinct := make(map[*sync.Mutex]struct{})
	for i := 0; i < 10000; i++ {
		distinct[g.channelMu(GroupChannel(fmt.Sprintf("room-%d", i)))] = struct{}{}
	}
	assert.LessOrEqual(t, len(distinct), sendMuShards)
}

func TestJoinRacingTeardownLeavesNoGhostSubscription(t *testing.T) {
	g := newTestGateway(&fakeStore{}, nil)
	c := connect(g, "c1")
	identify(t, g, c, "alice")

	// teardown from another goroutine (saturation, shutdown) completes while
	// a join frame is still in flight on the read goroutine
	g.closeClient(c)
	g.handleRaw(c, []byte(`{"type":"join-group","roomId":"r1"}`))

	assert.Empty(t, g.directory.SubscribersOf(GroupChannel("r1")))
	assert.Empty(t, g.directory.ChannelsOf("c1"))
}

func TestIdentifyRacingTeardownLeavesNoGhostPresence(t *testing.T) {
	g := newTestGateway(&fakeStore{}, nil)
	c := connect(g, "c1")
	identify(t, g, c, "alice")

	g.closeClient(c)
	require.False(t, g.presence.IsOnline("alice"))

	// a re-identify frame landing after teardown must not resurrect the user
	g.handleRaw(c, []byte(`{"type":"identify","userId":"alice"}`))

	assert.False(t, g.presence.IsOnline("alice"))
	assert.Empty(t, g.presence.Snapshot())
}

func TestMalformedCommandFields(t *testing.T) {
	g := newTestGateway(&fakeStore{}, nil)
	c := connect(g, "c1")
	identify(t, g, c, "alice")

	for _, raw := range []string{
		`{"type":"join-group"}`,
		`{"type":"join-direct","peerUserId":"  "}`,
		`{"type":"send-group-message","content":{"text":"hi"}}`,
		`{"type":"identify","userId":""}`,
	} {
		g.handleRaw(c, []byte(raw))
		ev := recvTyped(t, c, EvtError)
		assert.Equal(t, errs.MalformedFrameError, ev.Code, "frame: %s", raw)
	}
}
