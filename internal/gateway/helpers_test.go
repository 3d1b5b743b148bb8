package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"realtime-gateway/internal/auth"
	"realtime-gateway/internal/backbone"
	"realtime-gateway/internal/config"
)

const (
	testSecret     = "test-secret"
	testCookieName = "admin-session"
)

// fakeBus links fake backbones so two gateways in one test behave like two
// instances sharing a broker.
type fakeBus struct {
	mu    sync.Mutex
	peers []*fakeBackbone
}

func newFakeBus() *fakeBus {
	return &fakeBus{}
}

func (b *fakeBus) relay(from *fakeBackbone, channel string, payload []byte) {
	b.mu.Lock()
	peers := append([]*fakeBackbone(nil), b.peers...)
	b.mu.Unlock()

	for _, p := range peers {
		if p != from && p.subscribed(channel) {
			p.Inject(channel, payload)
		}
	}
}

// fakeBackbone records every backbone interaction and lets tests inject
// inbound messages as if a remote instance had published them.
type fakeBackbone struct {
	mu        sync.Mutex
	starts    int
	handler   backbone.Handler
	subs      map[string]int
	unsubs    map[string]int
	active    map[string]bool
	published map[string][][]byte
	bus       *fakeBus
}

func newFakeBackbone(bus *fakeBus) *fakeBackbone {
	f := &fakeBackbone{
		subs:      make(map[string]int),
		unsubs:    make(map[string]int),
		active:    make(map[string]bool),
		published: make(map[string][][]byte),
		bus:       bus,
	}
	if bus != nil {
		bus.mu.Lock()
		bus.peers = append(bus.peers, f)
		bus.mu.Unlock()
	}
	return f
}

func (f *fakeBackbone) Start(handler backbone.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.handler = handler
}

func (f *fakeBackbone) SubscribeChannel(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[channel]++
	f.active[channel] = true
	return nil
}

func (f *fakeBackbone) UnsubscribeChannel(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs[channel]++
	delete(f.active, channel)
	return nil
}

func (f *fakeBackbone) PublishChannel(channel string, payload []byte) error {
	f.mu.Lock()
	f.published[channel] = append(f.published[channel], payload)
	bus := f.bus
	f.mu.Unlock()
	if bus != nil {
		bus.relay(f, channel, payload)
	}
	return nil
}

func (f *fakeBackbone) Close() error { return nil }

func (f *fakeBackbone) Inject(channel string, payload []byte) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(channel, payload)
	}
}

func (f *fakeBackbone) subscribed(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[channel]
}

func (f *fakeBackbone) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeBackbone) subCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[channel]
}

func (f *fakeBackbone) unsubCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubs[channel]
}

func (f *fakeBackbone) publishedOn(channel string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.published[channel]...)
}

func testConfig(heartbeat time.Duration, origins ...string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins: origins,
		},
		Session: config.SessionConfig{
			Secret:     testSecret,
			CookieName: testCookieName,
		},
		Heartbeat: config.HeartbeatConfig{
			Interval: heartbeat,
		},
	}
}

func newTestGateway(t *testing.T, bb Backbone, cfg *config.Config) (*Gateway, *httptest.Server) {
	t.Helper()

	verifier := auth.NewVerifier(cfg.Session.Secret, cfg.Session.CookieName)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := New(cfg, verifier, bb, nil, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", g.ServeWS)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return g, srv
}

func makeToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["sub"]; !ok {
		claims["sub"] = "user-1"
	}
	if _, ok := claims["name"]; !ok {
		claims["name"] = "Test User"
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), wsHeader(token))
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func wsHeader(token string) http.Header {
	header := http.Header{}
	if token != "" {
		header.Set("Cookie", testCookieName+"="+token)
	}
	return header
}

func subscribe(t *testing.T, conn *websocket.Conn, channel string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Command{Type: CommandSubscribe, Channel: channel}))
}

func waitForSubscribers(t *testing.T, g *Gateway, channel string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return g.hub.registry.NumSubscribers(channel) == n
	}, 2*time.Second, 5*time.Millisecond, "channel %q never reached %d subscribers", channel, n)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// expectSilence asserts that no frame arrives for the given window.
func expectSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(window)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", raw)
	netErr, ok := err.(net.Error)
	require.True(t, ok && netErr.Timeout(), "expected read timeout, got: %v", err)
}
