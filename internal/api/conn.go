package api

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 64
)

var errSendBufferFull = errors.New("send buffer full")

type closeReq struct {
	code   int
	reason string
}

// wsConn adapts one gorilla connection to the realm.Socket contract: a
// buffered outbound channel drained by a single write pump, so Send never
// blocks the router.
type wsConn struct {
	conn    *websocket.Conn
	send    chan []byte
	closeCh chan closeReq
	done    chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		closeCh: make(chan closeReq, 1),
		done:    make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send queues a frame for the write pump. A full buffer means the client
// cannot keep up; the frame is dropped and the failure reported.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close flushes queued frames, sends a close frame with the given code and
// tears the connection down.
func (c *wsConn) Close(code int, reason string) error {
	select {
	case c.closeCh <- closeReq{code, reason}:
	default:
		// Write pump already gone or a close is in flight.
		c.conn.Close()
	}
	return nil
}

func (c *wsConn) writePump() {
	defer close(c.done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.conn.Close()
				return
			}
		case req := <-c.closeCh:
			c.drain()
			deadline := time.Now().Add(writeWait)
			if err := c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(req.code, req.reason), deadline); err != nil {
				log.Debug().Err(err).Msg("Failed to write close frame")
			}
			c.conn.Close()
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

// drain flushes whatever is still queued before a close frame.
func (c *wsConn) drain() {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
