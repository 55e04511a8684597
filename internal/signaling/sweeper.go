package signaling

import (
	"sync"
	"time"

	"github.com/relaymesh/conduit/internal/protocol"
	"github.com/rs/zerolog/log"
)

// sweeper runs the two lifecycle loops: the broken-connection detector on
// the alive-timeout cadence and the message expirer on the cleanup cadence.
type sweeper struct {
	core *Core

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// StartSweepers launches both timed loops. Calling it twice is a no-op.
func (c *Core) StartSweepers() {
	c.mu.Lock()
	if c.sweeper != nil {
		c.mu.Unlock()
		return
	}
	s := &sweeper{
		core:   c,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	c.sweeper = s
	c.mu.Unlock()
	go s.run()
}

// StopSweepers cancels both loops. Idempotent and synchronous; safe to call
// with the loops never started.
func (c *Core) StopSweepers() {
	c.mu.Lock()
	s := c.sweeper
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

// Destroy stops all core-owned timers. Idempotent.
func (c *Core) Destroy() {
	c.StopSweepers()
}

func (s *sweeper) run() {
	defer close(s.doneCh)

	opts := s.core.Options()
	alive := time.NewTicker(opts.AliveTimeout)
	cleanup := time.NewTicker(opts.CleanupInterval)
	defer alive.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-alive.C:
			s.sweepBroken()
		case <-cleanup.C:
			s.expireMessages()
		case <-s.stopCh:
			return
		}
	}
}

// sweepBroken removes peers whose last inbound frame is older than the
// alive timeout. Socket close is best-effort.
func (s *sweeper) sweepBroken() {
	opts := s.core.Options()
	cutoff := time.Now().Add(-opts.AliveTimeout)

	for _, peer := range s.core.realm.Peers() {
		if peer.LastPing().Before(cutoff) {
			log.Info().Str("peer", peer.ID).Time("lastPing", peer.LastPing()).Msg("Sweeping broken connection")
			s.core.RemovePeer(peer.ID, 4001, "connection timed out")
		}
	}
}

// expireMessages drains destinations whose queue has not been read within
// the expire timeout. Attached destinations get an EXPIRE per message,
// reporting the original source; detached ones lose the batch.
func (s *sweeper) expireMessages() {
	opts := s.core.Options()
	cutoff := time.Now().Add(-opts.ExpireTimeout)
	queue := s.core.realm.Queue()

	for _, dst := range queue.Stale(cutoff) {
		expired := queue.Drain(dst)
		if len(expired) == 0 {
			continue
		}
		peer := s.core.realm.GetPeer(dst)
		for _, msg := range expired {
			s.core.hooks.messageExpired(msg.Src, dst)
			s.core.hooks.errorOccurred(KindExpired, "message from "+msg.Src+" to "+dst)
			if peer != nil && peer.Attached() {
				_ = peer.Send(protocol.Expire(msg.Src, dst))
			}
		}
		log.Debug().Str("dst", dst).Int("count", len(expired)).Msg("Expired queued messages")
	}
}
