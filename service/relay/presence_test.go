package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceTransitions(t *testing.T) {
	p := NewPresence()

	assert.False(t, p.IsOnline("alice"))
	assert.True(t, p.MarkOnline("alice", "c1"), "first connection is the online transition")
	assert.False(t, p.MarkOnline("alice", "c2"), "second connection is not a transition")
	assert.True(t, p.IsOnline("alice"))

	// repeated mark of the same connection is idempotent
	assert.False(t, p.MarkOnline("alice", "c1"))

	assert.False(t, p.MarkOffline("alice", "c1"), "one of two connections closing keeps the user online")
	assert.True(t, p.IsOnline("alice"))
	assert.True(t, p.MarkOffline("alice", "c2"), "last connection closing is the offline transition")
	assert.False(t, p.IsOnline("alice"))
}

func TestPresenceOfflineUnknownIsNoop(t *testing.T) {
	p := NewPresence()
	assert.False(t, p.MarkOffline("ghost", "c1"))

	p.MarkOnline("alice", "c1")
	assert.False(t, p.MarkOffline("alice", "never-registered"))
	assert.True(t, p.IsOnline("alice"))
}

func TestPresenceSnapshot(t *testing.T) {
	p := NewPresence()
	p.MarkOnline("alice", "c1")
	p.MarkOnline("alice", "c2")
	p.MarkOnline("bob", "c3")

	assert.ElementsMatch(t, []string{"alice", "bob"}, p.Snapshot())

	p.MarkOffline("bob", "c3")
	assert.ElementsMatch(t, []string{"alice"}, p.Snapshot())
}
