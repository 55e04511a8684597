package signaling

import (
	"sync"
	"time"
)

// HookSet is one observer's callbacks. Any field may be nil. The metrics
// layer and the admin event bus each install their own set; the core never
// depends on who is listening.
type HookSet struct {
	ConnectionOpened func(id string)
	ConnectionClosed func(id string)
	MessageRelayed   func(src, dst, msgType string)
	MessageQueued    func(dst, msgType string)
	RateLimited      func(id string, rejected bool)
	ErrorOccurred    func(kind string, detail string)
	MessageHandled   func(elapsed time.Duration)
	MessageExpired   func(src, dst string)
	QueueDrained     func(dst string, count int)
}

// Hooks is the registration point replacing the source's live method
// wrapping: observers install a HookSet and get back an uninstall action
// that restores the previous state.
type Hooks struct {
	mu   sync.RWMutex
	sets map[uint64]*HookSet
	next uint64
}

// NewHooks creates an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{sets: make(map[uint64]*HookSet)}
}

// Install registers a HookSet and returns its uninstall action. Uninstall
// is idempotent.
func (h *Hooks) Install(set *HookSet) (uninstall func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.sets[id] = set
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.sets, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hooks) each(fn func(*HookSet)) {
	h.mu.RLock()
	sets := make([]*HookSet, 0, len(h.sets))
	for _, s := range h.sets {
		sets = append(sets, s)
	}
	h.mu.RUnlock()
	for _, s := range sets {
		fn(s)
	}
}

func (h *Hooks) connectionOpened(id string) {
	h.each(func(s *HookSet) {
		if s.ConnectionOpened != nil {
			s.ConnectionOpened(id)
		}
	})
}

func (h *Hooks) connectionClosed(id string) {
	h.each(func(s *HookSet) {
		if s.ConnectionClosed != nil {
			s.ConnectionClosed(id)
		}
	})
}

func (h *Hooks) messageRelayed(src, dst, msgType string) {
	h.each(func(s *HookSet) {
		if s.MessageRelayed != nil {
			s.MessageRelayed(src, dst, msgType)
		}
	})
}

func (h *Hooks) messageQueued(dst, msgType string) {
	h.each(func(s *HookSet) {
		if s.MessageQueued != nil {
			s.MessageQueued(dst, msgType)
		}
	})
}

func (h *Hooks) rateLimited(id string, rejected bool) {
	h.each(func(s *HookSet) {
		if s.RateLimited != nil {
			s.RateLimited(id, rejected)
		}
	})
}

func (h *Hooks) errorOccurred(kind, detail string) {
	h.each(func(s *HookSet) {
		if s.ErrorOccurred != nil {
			s.ErrorOccurred(kind, detail)
		}
	})
}

func (h *Hooks) messageHandled(elapsed time.Duration) {
	h.each(func(s *HookSet) {
		if s.MessageHandled != nil {
			s.MessageHandled(elapsed)
		}
	})
}

func (h *Hooks) messageExpired(src, dst string) {
	h.each(func(s *HookSet) {
		if s.MessageExpired != nil {
			s.MessageExpired(src, dst)
		}
	})
}

func (h *Hooks) queueDrained(dst string, count int) {
	h.each(func(s *HookSet) {
		if s.QueueDrained != nil {
			s.QueueDrained(dst, count)
		}
	})
}
