package admin

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogAndQuery(t *testing.T) {
	a := NewAuditLogger(100, true)

	a.Log("alice", ActionBanClient, "peer-1", map[string]any{"reason": "spam"})
	a.Log("bob", ActionBroadcast, "", map[string]any{"recipientCount": 3})
	a.Log("alice", ActionResetMetrics, "", nil)

	assert.Equal(t, 3, a.Len())

	byUser := a.Query(AuditQuery{UserID: "alice"})
	require.Len(t, byUser, 2)
	// Newest first.
	assert.Equal(t, ActionResetMetrics, byUser[0].Action)
	assert.Equal(t, ActionBanClient, byUser[1].Action)

	byAction := a.Query(AuditQuery{Action: ActionBroadcast})
	require.Len(t, byAction, 1)
	assert.Equal(t, "bob", byAction[0].UserID)

	limited := a.Query(AuditQuery{Limit: 1})
	require.Len(t, limited, 1)
	assert.Equal(t, ActionResetMetrics, limited[0].Action)
}

func TestAuditTimeRangeFilter(t *testing.T) {
	a := NewAuditLogger(100, true)
	before := time.Now().Add(-time.Minute)
	a.Log("alice", ActionLogin, "", nil)
	after := time.Now().Add(time.Minute)

	assert.Len(t, a.Query(AuditQuery{Since: before, Until: after}), 1)
	assert.Empty(t, a.Query(AuditQuery{Since: after}))
	assert.Empty(t, a.Query(AuditQuery{Until: before}))
}

func TestAuditIDsSortChronologically(t *testing.T) {
	a := NewAuditLogger(100, true)
	var prev string
	for i := 0; i < 5; i++ {
		e := a.Log("alice", ActionLogin, "", nil)
		if prev != "" {
			assert.Greater(t, e.ID, prev)
		}
		prev = e.ID
	}
}

func TestAuditEvictsOldest(t *testing.T) {
	a := NewAuditLogger(3, true)
	for i := 0; i < 5; i++ {
		a.Log("alice", ActionLogin, fmt.Sprintf("t%d", i), nil)
	}
	assert.Equal(t, 3, a.Len())
	entries := a.Query(AuditQuery{})
	assert.Equal(t, "t4", entries[0].Target)
	assert.Equal(t, "t2", entries[2].Target)
}

func TestAuditDisabledStillReturnsEntry(t *testing.T) {
	a := NewAuditLogger(100, false)
	e := a.Log("alice", ActionBanClient, "peer-1", nil)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, ActionBanClient, e.Action)
	assert.Equal(t, 0, a.Len())
}
