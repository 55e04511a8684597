package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBanListNamespacesAreDisjoint(t *testing.T) {
	b := NewBanList()
	b.BanClient("10.0.0.1", "looks like an ip", "op")

	assert.True(t, b.IsBanned("10.0.0.1", ""))
	assert.False(t, b.IsBanned("other", "10.0.0.1"), "client ban must not match as ip ban")

	b.BanIP("10.0.0.1", "now also an ip ban", "op")
	assert.True(t, b.IsBanned("other", "10.0.0.1"))

	assert.True(t, b.UnbanClient("10.0.0.1"))
	assert.True(t, b.IsBanned("other", "10.0.0.1"), "ip ban survives client unban")
	assert.False(t, b.IsBanned("10.0.0.1", ""))
}

func TestBanListUnbanMissing(t *testing.T) {
	b := NewBanList()
	assert.False(t, b.UnbanClient("ghost"))
	assert.False(t, b.UnbanIP("192.0.2.1"))
}

func TestBanListListAndLen(t *testing.T) {
	b := NewBanList()
	b.BanClient("alice", "spam", "op")
	b.BanIP("192.0.2.7", "abuse", "op")

	assert.Equal(t, 2, b.Len())
	entries := b.List()
	assert.Len(t, entries, 2)

	kinds := map[BanKind]string{}
	for _, e := range entries {
		kinds[e.Kind] = e.ID
		assert.Equal(t, "op", e.BannedBy)
		assert.False(t, e.BannedAt.IsZero())
	}
	assert.Equal(t, "alice", kinds[BanKindClient])
	assert.Equal(t, "192.0.2.7", kinds[BanKindIP])
}

func TestBanReplacesPriorEntry(t *testing.T) {
	b := NewBanList()
	b.BanClient("alice", "first", "op1")
	b.BanClient("alice", "second", "op2")

	assert.Equal(t, 1, b.Len())
	entries := b.List()
	assert.Equal(t, "second", entries[0].Reason)
	assert.Equal(t, "op2", entries[0].BannedBy)
}
