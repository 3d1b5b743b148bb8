// Package gateway is the real-time event distribution core: it upgrades
// authenticated browser connections, fans published events out to local
// subscribers and replicates them to the other instances over the
// backbone.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"realtime-gateway/internal/auth"
	"realtime-gateway/internal/config"
	"realtime-gateway/internal/firehose"
)

// Gateway is the composition root. The hosting process constructs exactly
// one and injects it wherever publishing or the upgrade handler is needed;
// there is no package-level instance.
type Gateway struct {
	cfg      *config.Config
	verifier *auth.Verifier
	hub      *Hub
	backbone Backbone
	sink     *firehose.Sink
	upgrader websocket.Upgrader
	logger   *slog.Logger

	startOnce sync.Once
}

// Stats is the shape served by the /stats endpoint.
type Stats struct {
	Connections int `json:"connections"`
	Channels    int `json:"channels"`
}

func New(cfg *config.Config, verifier *auth.Verifier, bb Backbone, sink *firehose.Sink, logger *slog.Logger) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		verifier: verifier,
		hub:      newHub(bb, logger),
		backbone: bb,
		sink:     sink,
		logger:   logger,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
	}
	return g
}

// EnsureStarted wires the backbone subscriber into local broadcast. It is
// safe to call from concurrent request handlers; only the first call does
// anything.
func (g *Gateway) EnsureStarted() {
	g.startOnce.Do(func() {
		g.backbone.Start(g.hub.broadcastLocal)
		g.logger.Info("gateway started", "heartbeat", g.cfg.Heartbeat.Interval)
	})
}

// Publish delivers data to every local subscriber of channel and forwards
// it to the backbone unconditionally: remote instances may have
// subscribers even when this one has none. Backbone and firehose failures
// degrade to local-only delivery, they never fail the publish.
func (g *Gateway) Publish(channel string, data any) error {
	g.EnsureStarted()

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %q: %w", channel, err)
	}

	g.hub.broadcastLocal(channel, raw)
	g.backbone.PublishChannel(channel, raw)
	g.sink.Emit(channel, raw)
	return nil
}

// Notify routes an internal event kind to its channel and publishes.
func (g *Gateway) Notify(kind EventKind, data any) error {
	channel := kind.Channel()
	if channel == "" {
		return fmt.Errorf("unknown event kind %q", kind)
	}
	return g.Publish(channel, data)
}

// ServeWS is the upgrade handler. Origin policy is enforced by the
// upgrader before the switch; authentication happens right after, so a
// rejected client is closed with a policy violation before it can touch
// the registry.
func (g *Gateway) ServeWS(c *gin.Context) {
	g.EnsureStarted()

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already replied, e.g. 403 on a rejected origin.
		g.logger.Warn("upgrade rejected", "remote", c.Request.RemoteAddr, "origin", c.Request.Header.Get("Origin"), "error", err)
		return
	}

	identity, err := g.verifier.Verify(c.Request.Header.Get("Cookie"))
	if err != nil {
		g.logger.Warn("handshake authentication failed", "remote", c.Request.RemoteAddr, "reason", err)
		closePolicyViolation(conn, err.Error())
		return
	}

	client := newClient(g.hub, conn, *identity, g.logger)
	g.hub.addClient(client)
	go client.writePump(g.cfg.Heartbeat.Interval)
	go client.readPump()
}

// Stats reports current connection and channel counts.
func (g *Gateway) Stats() Stats {
	return Stats{
		Connections: g.hub.numClients(),
		Channels:    g.hub.registry.NumChannels(),
	}
}

// Shutdown closes every open socket, which drains the backbone
// subscription set, then releases the backbone and firehose connections.
// The returned error reflects teardown itself, never the caller's
// deadline: a completed shutdown under an expired context is still clean.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.hub.closeAll()
	err := errors.Join(g.backbone.Close(), g.sink.Close())
	if err != nil {
		g.logger.Warn("error releasing gateway resources", "error", err)
	}
	g.logger.Info("gateway stopped")
	return err
}

// originChecker builds the upgrader's origin policy: an empty allow-list
// admits everything, otherwise the Origin header must match exactly.
// Requests without an Origin header are not browsers and pass.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func closePolicyViolation(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	conn.Close()
}
