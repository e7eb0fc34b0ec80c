package relay

import "sync"

// Presence maps a user to the set of connection ids currently open for that
// user. A user is online while the set is non-empty, so several devices or
// tabs can share one identity. State is process-lifetime only and rebuilt
// empty on restart.
type Presence struct {
	mu     sync.RWMutex
	byUser map[string]map[string]struct{} // userID -> connID set
}

func NewPresence() *Presence {
	return &Presence{byUser: make(map[string]map[string]struct{})}
}

// MarkOnline records the connection and reports whether it was the user's
// first, i.e. the user just transitioned to online. Idempotent.
func (p *Presence) MarkOnline(user, connID string) (first bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.byUser[user]
	if set == nil {
		set = make(map[string]struct{})
		p.byUser[user] = set
	}
	wasEmpty := len(set) == 0
	set[connID] = struct{}{}
	return wasEmpty
}

// MarkOffline removes the connection and reports whether it was the user's
// last, i.e. the user just transitioned to offline. Unknown pairs are a
// no-op.
func (p *Presence) MarkOffline(user, connID string) (last bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.byUser[user]
	if set == nil {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(p.byUser, user)
		return true
	}
	return false
}

func (p *Presence) IsOnline(user string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser[user]) > 0
}

// Snapshot returns every currently online user.
func (p *Presence) Snapshot() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.byUser))
	for user := range p.byUser {
		out = append(out, user)
	}
	return out
}
