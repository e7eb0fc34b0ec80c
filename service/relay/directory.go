package relay

import "sync"

// Directory tracks live channel subscriptions: which connections should
// receive a fan-out for a channel, and which users those connections belong
// to. Historical group membership lives in storage and is irrelevant here --
// a connection only appears after an explicit join command.
type Directory struct {
	mu     sync.RWMutex
	subs   map[ChannelID]map[string]string    // channel -> connID -> userID
	byConn map[string]map[ChannelID]struct{} // connID -> joined channels
}

func NewDirectory() *Directory {
	return &Directory{
		subs:   make(map[ChannelID]map[string]string),
		byConn: make(map[string]map[ChannelID]struct{}),
	}
}

// Join is idempotent: repeated joins of the same (channel, conn) pair leave
// a single subscription.
func (d *Directory) Join(ch ChannelID, user, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := d.subs[ch]
	if m == nil {
		m = make(map[string]string)
		d.subs[ch] = m
	}
	m[connID] = user

	joined := d.byConn[connID]
	if joined == nil {
		joined = make(map[ChannelID]struct{})
		d.byConn[connID] = joined
	}
	joined[ch] = struct{}{}
}

// Leave removes the connection from the channel. Leaving a channel that was
// never joined is a no-op.
func (d *Directory) Leave(ch ChannelID, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leaveLocked(ch, connID)
}

func (d *Directory) leaveLocked(ch ChannelID, connID string) {
	if m := d.subs[ch]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(d.subs, ch)
		}
	}
	if joined := d.byConn[connID]; joined != nil {
		delete(joined, ch)
		if len(joined) == 0 {
			delete(d.byConn, connID)
		}
	}
}

// DropConn removes the connection from every channel it joined and returns
// the channels it was subscribed to. Used by connection teardown.
func (d *Directory) DropConn(connID string) []ChannelID {
	d.mu.Lock()
	defer d.mu.Unlock()

	joined := d.byConn[connID]
	if len(joined) == 0 {
		delete(d.byConn, connID)
		return nil
	}
	out := make([]ChannelID, 0, len(joined))
	for ch := range joined {
		out = append(out, ch)
	}
	for _, ch := range out {
		d.leaveLocked(ch, connID)
	}
	return out
}

// SubscribersOf returns the connection ids currently subscribed to the
// channel, i.e. the fan-out delivery list.
func (d *Directory) SubscribersOf(ch ChannelID) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m := d.subs[ch]
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for connID := range m {
		out = append(out, connID)
	}
	return out
}

// MembersOf returns the distinct users with at least one live subscription
// to the channel.
func (d *Directory) MembersOf(ch ChannelID) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m := d.subs[ch]
	if len(m) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(m))
	out := make([]string, 0, len(m))
	for _, user := range m {
		if _, ok := seen[user]; ok {
			continue
		}
		seen[user] = struct{}{}
		out = append(out, user)
	}
	return out
}

// ChannelsOf returns the channels the connection has joined.
func (d *Directory) ChannelsOf(connID string) []ChannelID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	joined := d.byConn[connID]
	if len(joined) == 0 {
		return nil
	}
	out := make([]ChannelID, 0, len(joined))
	for ch := range joined {
		out = append(out, ch)
	}
	return out
}
