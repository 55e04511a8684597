// Package api is the peer-facing surface: the signaling WebSocket plus the
// small HTTP helper endpoints for id generation and discovery.
package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/relaymesh/conduit/internal/config"
	"github.com/relaymesh/conduit/internal/signaling"
)

// Server serves the peer endpoints under cfg.Path.
type Server struct {
	cfg       *config.Config
	core      *signaling.Core
	version   string
	discovery atomic.Bool
	upgrader  websocket.Upgrader
}

// NewServer builds the adapter over a signaling core.
func NewServer(cfg *config.Config, core *signaling.Core, version string) *Server {
	s := &Server{cfg: cfg, core: core, version: version}
	s.discovery.Store(cfg.AllowDiscovery)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.originAllowed,
	}
	return s
}

// SetAllowDiscovery flips the discovery endpoint at runtime. Wired to the
// admin feature toggle.
func (s *Server) SetAllowDiscovery(enabled bool) {
	s.discovery.Store(enabled)
}

// AllowDiscovery reports the current discovery setting.
func (s *Server) AllowDiscovery() bool {
	return s.discovery.Load()
}

// originAllowed matches the Origin header against the configured patterns.
// An empty allow list admits everyone.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, pattern := range s.cfg.AllowedOrigins {
		if wildcard.Match(pattern, origin) {
			return true
		}
	}
	return false
}

// Handler builds the peer-facing route tree.
func (s *Server) Handler() http.Handler {
	base := strings.TrimSuffix(s.cfg.Path, "/")
	mux := http.NewServeMux()
	mux.HandleFunc(base+"/conduit", s.handleWS)
	mux.HandleFunc(base+"/", s.handleHTTP)
	return s.withHeaders(mux)
}

// withHeaders applies the security and CORS headers to every response.
func (s *Server) withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHTTP serves the non-WS peer endpoints: the info document, fresh id
// generation and the discovery list.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	base := strings.TrimSuffix(s.cfg.Path, "/")
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, base+"/"), "/")
	if rest == "" {
		s.writeJSON(w, http.StatusOK, map[string]string{"name": "conduit", "version": s.version})
		return
	}

	key, endpoint, found := strings.Cut(rest, "/")
	if !found {
		http.NotFound(w, r)
		return
	}
	if key != s.cfg.Key {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid key provided"})
		return
	}

	switch endpoint {
	case "id":
		id, err := s.core.Realm().GenerateID()
		if err != nil {
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "id generation failed"})
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(id))
	case "conduits":
		if !s.discovery.Load() {
			s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "discovery is disabled"})
			return
		}
		s.writeJSON(w, http.StatusOK, s.core.PeerIDs())
	default:
		http.NotFound(w, r)
	}
}

// handleWS runs the signaling socket: upgrade, admit through the core, then
// pump frames until the peer goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := signaling.ConnectionParams{
		Key:      q.Get("key"),
		ID:       q.Get("id"),
		Token:    q.Get("token"),
		RemoteIP: remoteIP(r),
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("ip", params.RemoteIP).Msg("WebSocket upgrade rejected")
		return
	}

	sock := newWSConn(conn)
	peer, err := s.core.HandleConnection(params, sock)
	if err != nil {
		// The rejection frame is already queued; close flushes it.
		sock.Close(websocket.CloseNormalClosure, err.Error())
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		peer.Touch()
		return nil
	})
	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(int64(s.cfg.MaxMessageBytes))
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		s.core.HandleMessage(peer, raw)
	}
	s.core.HandleDisconnect(peer, sock)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response")
	}
}

// remoteIP prefers the first X-Forwarded-For hop, falling back to the
// connection address.
func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
