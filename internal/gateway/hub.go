package gateway

import (
	"log/slog"
	"sync"

	"realtime-gateway/internal/backbone"
	"realtime-gateway/internal/registry"
)

// Backbone replicates events across gateway instances. The Redis adapter
// in internal/backbone is the production implementation; tests substitute
// an in-memory fake.
type Backbone interface {
	Start(handler backbone.Handler)
	SubscribeChannel(channel string) error
	UnsubscribeChannel(channel string) error
	PublishChannel(channel string, payload []byte) error
	Close() error
}

// Hub holds the process-wide connection set and the channel registry, and
// keeps the backbone subscription set in sync with the registry's
// activation signals.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	registry *registry.Registry
	backbone Backbone
	logger   *slog.Logger

	// topicMu makes a registry mutation and its paired backbone call one
	// atomic step. Without it, a stale unsubscribe from a disconnecting
	// client can land after a fresh subscribe and strand a live local
	// subscriber on an unsubscribed topic. Broadcasts never take this
	// lock; socket writes stay lock-free via registry snapshots.
	topicMu sync.Mutex
}

func newHub(bb Backbone, logger *slog.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		registry: registry.New(),
		backbone: bb,
		logger:   logger,
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client registered", "clientID", c.id, "subject", c.identity.SubjectID, "connections", n)
}

// removeClient detaches a connection from the hub and the registry, and
// unsubscribes the backbone from every channel that lost its last local
// subscriber. Safe to call more than once for the same client.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	h.topicMu.Lock()
	for _, channel := range h.registry.RemoveConnection(c) {
		h.backbone.UnsubscribeChannel(channel)
	}
	h.topicMu.Unlock()
}

func (h *Hub) subscribe(c *Client, channel string) {
	h.topicMu.Lock()
	if h.registry.Subscribe(c, channel) {
		h.backbone.SubscribeChannel(channel)
	}
	h.topicMu.Unlock()
	c.logger.Debug("subscribed", "channel", channel)
}

func (h *Hub) unsubscribe(c *Client, channel string) {
	h.topicMu.Lock()
	if h.registry.Unsubscribe(c, channel) {
		h.backbone.UnsubscribeChannel(channel)
	}
	h.topicMu.Unlock()
	c.logger.Debug("unsubscribed", "channel", channel)
}

// broadcastLocal fans an event out to local subscribers only. It is also
// the backbone's inbound handler; it must never publish back to the
// backbone or the event would replicate forever.
func (h *Hub) broadcastLocal(channel string, data []byte) {
	frame, err := newFrame(channel, data)
	if err != nil {
		h.logger.Error("dropping undeliverable event", "channel", channel, "error", err)
		return
	}
	for _, conn := range h.registry.Snapshot(channel) {
		if !conn.Deliver(frame) {
			h.logger.Debug("skipped closed subscriber", "channel", channel)
		}
	}
}

// closeAll terminates every open connection. Teardown of each client
// unsubscribes its channels from the backbone along the way.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.teardown()
	}
}

func (h *Hub) numClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
