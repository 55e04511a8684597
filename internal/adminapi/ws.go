package adminapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var adminUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The admin WS authenticates via credentials, not origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsCommand is an inbound subscriber control frame.
type wsCommand struct {
	Type string `json:"type"`
	Data struct {
		Events []string `json:"events"`
	} `json:"data"`
}

// serveWS upgrades the admin event socket. Credentials arrive as a query
// parameter at handshake time; a failed check closes with code 4001 after
// the upgrade so the client sees a meaningful close frame.
func (r *Router) serveWS(w http.ResponseWriter, req *http.Request) {
	authed := false
	if key := req.URL.Query().Get("apiKey"); key != "" {
		authed = r.admin.Auth.ValidateAPIKey(key).Valid
	}
	if !authed {
		if token := req.URL.Query().Get("token"); token != "" {
			authed = r.admin.Auth.ValidateJWT(token).Valid
		}
	}

	conn, err := adminUpgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Admin WS upgrade failed")
		return
	}

	if !authed {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(4001, "authentication failed"), deadline)
		conn.Close()
		return
	}

	sub := r.admin.Events.AddSubscriber()
	defer r.admin.Events.RemoveSubscriber(sub.ID)

	var writeMu sync.Mutex
	writeJSONFrame := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		heartbeat := r.cfg.Admin.WS.HeartbeatInterval
		if heartbeat <= 0 {
			heartbeat = 30 * time.Second
		}
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case ev, open := <-sub.C:
				if !open {
					// Bus shut down. Close the socket so the read loop
					// below unblocks instead of waiting on the client.
					deadline := time.Now().Add(time.Second)
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
					conn.Close()
					return
				}
				if err := writeJSONFrame(ev); err != nil {
					return
				}
			case <-ticker.C:
				if err := writeJSONFrame(map[string]string{"type": "heartbeat"}); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var cmd wsCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		switch cmd.Type {
		case "subscribe":
			sub.Subscribe(cmd.Data.Events...)
		case "unsubscribe":
			sub.Unsubscribe(cmd.Data.Events...)
		case "ping":
			_ = writeJSONFrame(map[string]string{"type": "pong"})
		}
	}

	conn.Close()
	r.admin.Events.RemoveSubscriber(sub.ID)
	<-done
}
