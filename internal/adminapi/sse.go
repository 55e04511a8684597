package adminapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// serveSSE streams the admin event bus as server-sent events. Credentials
// come from the usual headers, or ?apiKey= for EventSource clients that
// cannot set headers.
func (r *Router) serveSSE(w http.ResponseWriter, req *http.Request) {
	auth := r.admin.Auth.AuthenticateRequest(req.Header)
	if !auth.Valid {
		if key := req.URL.Query().Get("apiKey"); key != "" {
			auth = r.admin.Auth.ValidateAPIKey(key)
		}
	}
	if !auth.Valid {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := r.admin.Events.AddSubscriber()
	defer r.admin.Events.RemoveSubscriber(sub.ID)

	heartbeat := r.cfg.Admin.WS.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case ev, open := <-sub.C:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Debug().Err(err).Msg("Failed to encode SSE event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
