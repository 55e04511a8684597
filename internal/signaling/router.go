package signaling

import (
	"fmt"

	"github.com/relaymesh/conduit/internal/protocol"
	"github.com/relaymesh/conduit/internal/realm"
	"github.com/relaymesh/conduit/internal/validate"
	"github.com/rs/zerolog/log"
)

func validateParams(params ConnectionParams) error {
	if err := validate.ID(params.ID); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidID, err)
	}
	if err := validate.Token(params.Token); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	return nil
}

// protocolParse runs the size guard, structural validation and decoding of
// one inbound frame.
func protocolParse(raw []byte, maxBytes int) (protocol.Message, error) {
	obj, err := validate.SafeParse(raw, maxBytes)
	if err != nil {
		return protocol.Message{}, err
	}
	if err := validate.Message(obj, protocol.KnownType); err != nil {
		return protocol.Message{}, err
	}
	msg := protocol.Message{}
	if t, ok := obj["type"].(string); ok {
		msg.Type = t
	}
	if d, ok := obj["dst"].(string); ok {
		msg.Dst = d
	}
	if s, ok := obj["src"].(string); ok {
		msg.Src = s
	}
	msg.Payload = obj["payload"]
	return msg, nil
}

// dispatch routes one validated frame. The validator has already rejected
// unknown types; anything uncatalogued ends up logged and dropped.
func (c *Core) dispatch(sender *realm.Peer, msg protocol.Message, opts Options) {
	switch {
	case msg.Type == protocol.TypeHeartbeat:
		// Liveness was stamped on receive; heartbeats have no fan-out.

	case protocol.RelayType(msg.Type):
		c.handleRelay(sender, msg, opts)

	case protocol.Routed(msg.Type):
		c.forward(sender, msg)

	default:
		// OPEN, ERROR, EXPIRE etc. are server-to-client only.
		log.Debug().Str("peer", sender.ID).Str("type", msg.Type).Msg("Ignoring non-routable frame from peer")
	}
}

// forward rewrites src to the authenticated sender and delivers to dst,
// queueing when the destination is absent or the write fails.
func (c *Core) forward(sender *realm.Peer, msg protocol.Message) {
	if msg.Dst == "" {
		c.hooks.errorOccurred(KindValidation, "routed message without dst")
		_ = sender.Send(protocol.Error("message requires a dst"))
		return
	}

	out := protocol.Message{
		Type:    msg.Type,
		Src:     sender.ID,
		Dst:     msg.Dst,
		Payload: msg.Payload,
	}

	dst := c.realm.GetPeer(msg.Dst)
	if dst == nil || !dst.Attached() {
		c.enqueue(out)
		return
	}

	if err := dst.Send(out); err != nil {
		c.hooks.errorOccurred(KindSendFailed, err.Error())
		c.enqueue(out)
		return
	}
	c.hooks.messageRelayed(out.Src, out.Dst, out.Type)
}

func (c *Core) enqueue(msg protocol.Message) {
	c.realm.Queue().Enqueue(msg.Dst, msg)
	c.hooks.messageQueued(msg.Dst, msg.Type)
}

// handleRelay enforces the relay gate and byte budget before forwarding.
// RELAY_OPEN echoes an acknowledgement to the sender so its fallback
// channel can consider itself established.
func (c *Core) handleRelay(sender *realm.Peer, msg protocol.Message, opts Options) {
	if !opts.RelayEnabled {
		c.hooks.errorOccurred(KindRelayDisabled, "peer "+sender.ID)
		_ = sender.Send(protocol.Error("relay is disabled"))
		return
	}

	if opts.MaxRelayBytes > 0 && msg.PayloadDataSize() > opts.MaxRelayBytes {
		c.hooks.errorOccurred(KindRelayOversize, fmt.Sprintf("peer %s sent %d bytes", sender.ID, msg.PayloadDataSize()))
		_ = sender.Send(protocol.Error("relay payload too large"))
		return
	}

	c.forward(sender, msg)

	if msg.Type == protocol.TypeRelayOpen {
		ack := protocol.Message{
			Type: protocol.TypeRelayOpen,
			Src:  msg.Dst,
			Payload: map[string]any{
				"connectionId": msg.ConnectionID(),
				"open":         true,
			},
		}
		_ = sender.Send(ack)
	}
}
