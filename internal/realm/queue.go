package realm

import (
	"sync"
	"time"

	"github.com/relaymesh/conduit/internal/protocol"
)

// DefaultQueueCap bounds pending messages per destination. On overflow the
// oldest message is dropped and reported through the overflow callback.
const DefaultQueueCap = 100

// MessageQueue holds undeliverable messages per destination id, FIFO. Each
// destination with pending messages carries the timestamp of its oldest
// unread batch; draining or clearing the destination drops both.
type MessageQueue struct {
	mu         sync.Mutex
	pending    map[string][]protocol.Message
	lastReadAt map[string]time.Time
	capacity   int
	onOverflow func(dst string, dropped protocol.Message)

	now func() time.Time
}

// NewMessageQueue creates a queue with the given per-destination cap.
func NewMessageQueue(capacity int) *MessageQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCap
	}
	return &MessageQueue{
		pending:    make(map[string][]protocol.Message),
		lastReadAt: make(map[string]time.Time),
		capacity:   capacity,
		now:        time.Now,
	}
}

// OnOverflow registers the drop callback. Must be set before traffic.
func (q *MessageQueue) OnOverflow(fn func(dst string, dropped protocol.Message)) {
	q.mu.Lock()
	q.onOverflow = fn
	q.mu.Unlock()
}

// Enqueue appends a message for an offline destination, dropping the oldest
// entry when the cap is exceeded.
func (q *MessageQueue) Enqueue(dst string, msg protocol.Message) {
	q.mu.Lock()
	list := q.pending[dst]
	var dropped *protocol.Message
	if len(list) >= q.capacity {
		d := list[0]
		dropped = &d
		list = list[1:]
	}
	q.pending[dst] = append(list, msg)
	if _, seen := q.lastReadAt[dst]; !seen {
		// First pending message starts the expiry clock.
		q.lastReadAt[dst] = q.now()
	}
	fn := q.onOverflow
	q.mu.Unlock()

	if dropped != nil && fn != nil {
		fn(dst, *dropped)
	}
}

// Drain returns and clears the destination's pending messages in enqueue
// order. The expiry clock is forgotten with the batch; the next Enqueue
// restarts it. Draining must not leave per-destination state behind, or the
// expirer would rescan every destination ever seen.
func (q *MessageQueue) Drain(dst string) []protocol.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.pending[dst]
	delete(q.pending, dst)
	delete(q.lastReadAt, dst)
	return list
}

// LastReadAt returns the timestamp of the destination's oldest unread batch
// (zero when nothing is pending).
func (q *MessageQueue) LastReadAt(dst string) time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastReadAt[dst]
}

// Clear discards the destination's pending messages and forgets its read
// timestamp. Returns the number of discarded messages.
func (q *MessageQueue) Clear(dst string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending[dst])
	delete(q.pending, dst)
	delete(q.lastReadAt, dst)
	return n
}

// Len returns the number of pending messages for dst.
func (q *MessageQueue) Len(dst string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[dst])
}

// TotalLen returns the number of pending messages across destinations.
func (q *MessageQueue) TotalLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, list := range q.pending {
		total += len(list)
	}
	return total
}

// Stale returns destinations whose lastReadAt is older than the cutoff and
// which still track state. Used by the message expirer.
func (q *MessageQueue) Stale(cutoff time.Time) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for dst, readAt := range q.lastReadAt {
		if !readAt.IsZero() && readAt.Before(cutoff) {
			out = append(out, dst)
		}
	}
	return out
}
