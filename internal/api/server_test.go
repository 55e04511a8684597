package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/conduit/internal/config"
	"github.com/relaymesh/conduit/internal/protocol"
	"github.com/relaymesh/conduit/internal/ratelimit"
	"github.com/relaymesh/conduit/internal/realm"
	"github.com/relaymesh/conduit/internal/signaling"
)

type fixture struct {
	srv  *httptest.Server
	core *signaling.Core
	cfg  *config.Config
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(cfg)
	}

	opts := signaling.DefaultOptions()
	opts.Key = cfg.Key
	opts.RelayEnabled = cfg.Relay.Enabled
	core := signaling.NewCore(realm.New(100), ratelimit.New(cfg.RateLimit.MaxTokens, cfg.RateLimit.RefillRate), opts)
	t.Cleanup(func() { core.Destroy() })

	server := NewServer(cfg, core, "1.0.0-test")
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, core: core, cfg: cfg}
}

func (f *fixture) wsURL(id, token string) string {
	return strings.Replace(f.srv.URL, "http://", "ws://", 1) +
		"/conduit?key=" + f.cfg.Key + "&id=" + id + "&token=" + token
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg protocol.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHandshakeDeliversOpen(t *testing.T) {
	f := newFixture(t, nil)
	conn := dial(t, f.wsURL("alice", "secret"), nil)

	msg := readFrame(t, conn)
	assert.Equal(t, protocol.TypeOpen, msg.Type)
	assert.Equal(t, []string{"alice"}, f.core.PeerIDs())
}

func TestHandshakeInvalidKey(t *testing.T) {
	f := newFixture(t, nil)
	url := strings.Replace(f.srv.URL, "http://", "ws://", 1) +
		"/conduit?key=wrong&id=alice&token=secret"
	conn := dial(t, url, nil)

	msg := readFrame(t, conn)
	assert.Equal(t, protocol.TypeError, msg.Type)

	// The server closes after the rejection frame.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestOfferForwardedBetweenPeers(t *testing.T) {
	f := newFixture(t, nil)
	alice := dial(t, f.wsURL("alice", "s1"), nil)
	bob := dial(t, f.wsURL("bob", "s2"), nil)
	readFrame(t, alice)
	readFrame(t, bob)

	require.NoError(t, alice.WriteJSON(protocol.Message{
		Type: protocol.TypeOffer, Dst: "bob",
		Payload: map[string]any{"sdp": "v=0"},
	}))

	msg := readFrame(t, bob)
	assert.Equal(t, protocol.TypeOffer, msg.Type)
	assert.Equal(t, "alice", msg.Src, "src is stamped by the server")
}

func TestOfflineDestinationQueuedAndDrained(t *testing.T) {
	f := newFixture(t, nil)
	alice := dial(t, f.wsURL("alice", "s1"), nil)
	readFrame(t, alice)

	require.NoError(t, alice.WriteJSON(protocol.Message{
		Type: protocol.TypeCandidate, Dst: "bob",
		Payload: map[string]any{"candidate": "udp"},
	}))

	require.Eventually(t, func() bool {
		return f.core.QueueLen("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	bob := dial(t, f.wsURL("bob", "s2"), nil)
	first := readFrame(t, bob)
	assert.Equal(t, protocol.TypeOpen, first.Type)
	queued := readFrame(t, bob)
	assert.Equal(t, protocol.TypeCandidate, queued.Type)
	assert.Equal(t, "alice", queued.Src)
}

func TestInfoEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Get(f.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "conduit", body["name"])
	assert.Equal(t, "1.0.0-test", body["version"])
}

func TestIDEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Get(f.srv.URL + "/conduit-key-wrong/id")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/" + f.cfg.Key + "/id")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	id, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, string(id), 16)
}

func TestDiscoveryEndpoint(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.AllowDiscovery = true })
	conn := dial(t, f.wsURL("alice", "s"), nil)
	readFrame(t, conn)

	resp, err := http.Get(f.srv.URL + "/" + f.cfg.Key + "/conduits")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ids []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ids))
	assert.Equal(t, []string{"alice"}, ids)
}

func TestDiscoveryDisabled(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := http.Get(f.srv.URL + "/" + f.cfg.Key + "/conduits")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDiscoveryRuntimeToggle(t *testing.T) {
	cfg := config.Defaults()
	core := signaling.NewCore(realm.New(100), nil, signaling.DefaultOptions())
	defer core.Destroy()
	server := NewServer(cfg, core, "test")

	assert.False(t, server.AllowDiscovery())
	server.SetAllowDiscovery(true)
	assert.True(t, server.AllowDiscovery())
}

func TestOriginRejected(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.AllowedOrigins = []string{"https://app.example", "https://*.trusted.example"}
	})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL("alice", "s"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, f.wsURL("alice", "s"), http.Header{"Origin": []string{"https://sub.trusted.example"}})
	msg := readFrame(t, conn)
	assert.Equal(t, protocol.TypeOpen, msg.Type)
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture(t, nil)
	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://anywhere.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://anywhere.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
