package realm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/relaymesh/conduit/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	sent   [][]byte
	closed bool
}

func (s *fakeSocket) Send(data []byte) error {
	s.sent = append(s.sent, data)
	return nil
}

func (s *fakeSocket) Close(code int, reason string) error {
	s.closed = true
	return nil
}

func TestGenerateIDNeverCollides(t *testing.T) {
	r := New(0)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := r.GenerateID()
		require.NoError(t, err)
		assert.False(t, r.PeerExists(id), "generated id must not be mapped")
		assert.False(t, seen[id])
		assert.Len(t, id, 16, "12 raw bytes encode to 16 base64url chars")
		seen[id] = true
	}
}

func TestRegisterIfAbsent(t *testing.T) {
	r := New(0)
	first := NewPeer("alice", "t1")

	existing, registered, full := r.RegisterIfAbsent(first, 0)
	assert.True(t, registered)
	assert.Nil(t, existing)
	assert.False(t, full)

	second := NewPeer("alice", "t2")
	existing, registered, full = r.RegisterIfAbsent(second, 0)
	assert.False(t, registered)
	assert.Same(t, first, existing)
	assert.False(t, full)

	assert.Equal(t, 1, r.Len())
	assert.Same(t, first, r.GetPeer("alice"))
}

func TestRegisterIfAbsentEnforcesLimit(t *testing.T) {
	r := New(0)

	_, registered, full := r.RegisterIfAbsent(NewPeer("alice", "t1"), 2)
	assert.True(t, registered)
	assert.False(t, full)
	_, registered, full = r.RegisterIfAbsent(NewPeer("bob", "t2"), 2)
	assert.True(t, registered)
	assert.False(t, full)

	_, registered, full = r.RegisterIfAbsent(NewPeer("carol", "t3"), 2)
	assert.False(t, registered)
	assert.True(t, full)
	assert.Equal(t, 2, r.Len())

	// A live id rebinds regardless of the cap.
	existing, registered, full := r.RegisterIfAbsent(NewPeer("alice", "t1"), 2)
	assert.False(t, registered)
	assert.False(t, full)
	assert.NotNil(t, existing)

	// Concurrent admissions racing for the last slot admit exactly one.
	r2 := New(0)
	const racers = 16
	var wg sync.WaitGroup
	var admitted atomic.Int64
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, ok, _ := r2.RegisterIfAbsent(NewPeer(fmt.Sprintf("peer-%d", n), ""), 1); ok {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(1), admitted.Load())
	assert.Equal(t, 1, r2.Len())
}

func TestRemovePeer(t *testing.T) {
	r := New(0)
	p := NewPeer("alice", "t1")
	r.SetPeer(p)

	removed := r.RemovePeer("alice")
	assert.Same(t, p, removed)
	assert.False(t, r.PeerExists("alice"))
	assert.Nil(t, r.RemovePeer("alice"))
}

func TestPeerIDs(t *testing.T) {
	r := New(0)
	r.SetPeer(NewPeer("a", ""))
	r.SetPeer(NewPeer("b", ""))
	assert.ElementsMatch(t, []string{"a", "b"}, r.PeerIDs())
}

func TestPeerAttachDetachSend(t *testing.T) {
	p := NewPeer("alice", "t1")
	assert.False(t, p.Attached())

	err := p.Send(protocol.Message{Type: protocol.TypeHeartbeat})
	assert.ErrorIs(t, err, ErrDetached)

	s := &fakeSocket{}
	displaced := p.Attach(s, "10.0.0.1")
	assert.Nil(t, displaced)
	assert.True(t, p.Attached())
	assert.Equal(t, "10.0.0.1", p.RemoteIP())

	require.NoError(t, p.Send(protocol.Message{Type: protocol.TypeHeartbeat}))
	assert.Len(t, s.sent, 1)

	// Rebinding displaces the old socket but keeps the recorded IP when the
	// new bind has none.
	s2 := &fakeSocket{}
	displaced = p.Attach(s2, "")
	assert.Same(t, s, displaced)
	assert.Equal(t, "10.0.0.1", p.RemoteIP())

	// Detach with a stale socket is a no-op.
	p.Detach(s)
	assert.True(t, p.Attached())
	p.Detach(s2)
	assert.False(t, p.Attached())
}

func TestPeerClose(t *testing.T) {
	p := NewPeer("alice", "t1")
	s := &fakeSocket{}
	p.Attach(s, "")
	p.Close(1001, "going away")
	assert.True(t, s.closed)
	assert.False(t, p.Attached())

	// Close with no socket is harmless.
	p.Close(1001, "")
}
