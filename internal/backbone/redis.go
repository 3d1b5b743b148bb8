// Package backbone replicates published events between gateway instances
// over Redis pub/sub. Channel names are namespaced with a topic prefix so
// gateway traffic cannot collide with other subsystems sharing the broker.
package backbone

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	reconnectMin = 250 * time.Millisecond
	reconnectMax = 30 * time.Second
)

// Handler receives an inbound backbone message with the topic prefix
// already stripped. Handlers must only fan out locally; re-publishing to
// the backbone from a handler would loop the message forever.
type Handler func(channel string, payload []byte)

type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedis(client *redis.Client, prefix string, logger *slog.Logger) *Redis {
	ctx, cancel := context.WithCancel(context.Background())
	return &Redis{
		client: client,
		prefix: prefix,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start opens the subscriber connection and begins delivering inbound
// messages to handler. It must be called once, before any SubscribeChannel.
func (b *Redis) Start(handler Handler) {
	b.mu.Lock()
	b.pubsub = b.client.Subscribe(b.ctx)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.receive(handler)
}

// SubscribeChannel adds the namespaced topic for channel to the subscriber
// connection. Best effort: a failure leaves the gateway in local-only
// delivery for that channel until the backbone recovers.
func (b *Redis) SubscribeChannel(channel string) error {
	b.mu.Lock()
	pubsub := b.pubsub
	b.mu.Unlock()
	if pubsub == nil {
		return nil
	}
	if err := pubsub.Subscribe(b.ctx, b.topicFor(channel)); err != nil {
		b.logger.Warn("backbone subscribe failed", "channel", channel, "error", err)
		return err
	}
	return nil
}

func (b *Redis) UnsubscribeChannel(channel string) error {
	b.mu.Lock()
	pubsub := b.pubsub
	b.mu.Unlock()
	if pubsub == nil {
		return nil
	}
	if err := pubsub.Unsubscribe(b.ctx, b.topicFor(channel)); err != nil {
		b.logger.Warn("backbone unsubscribe failed", "channel", channel, "error", err)
		return err
	}
	return nil
}

// PublishChannel forwards a serialized payload to every other instance
// subscribed to channel. The envelope's channel and timestamp are not on
// the wire; receivers reconstruct them locally.
func (b *Redis) PublishChannel(channel string, payload []byte) error {
	if err := b.client.Publish(b.ctx, b.topicFor(channel), payload).Err(); err != nil {
		b.logger.Warn("backbone publish failed, local-only delivery", "channel", channel, "error", err)
		return err
	}
	return nil
}

func (b *Redis) Close() error {
	b.cancel()
	b.mu.Lock()
	pubsub := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()
	var err error
	if pubsub != nil {
		err = pubsub.Close()
	}
	b.wg.Wait()
	return err
}

// receive pumps inbound messages until Close. Receive errors back off
// exponentially between 250ms and 30s; a reconnected broker resets the
// delay. While disconnected the gateway keeps serving local subscribers.
func (b *Redis) receive(handler Handler) {
	defer b.wg.Done()

	b.mu.Lock()
	pubsub := b.pubsub
	b.mu.Unlock()
	if pubsub == nil {
		return
	}

	delay := reconnectMin
	for {
		msg, err := pubsub.ReceiveMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Warn("backbone receive failed, retrying", "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-b.ctx.Done():
				return
			}
			if delay *= 2; delay > reconnectMax {
				delay = reconnectMax
			}
			continue
		}
		delay = reconnectMin

		channel, ok := b.channelFor(msg.Channel)
		if !ok {
			b.logger.Warn("backbone message on unexpected topic", "topic", msg.Channel)
			continue
		}
		handler(channel, []byte(msg.Payload))
	}
}

func (b *Redis) topicFor(channel string) string {
	return b.prefix + channel
}

func (b *Redis) channelFor(topic string) (string, bool) {
	if !strings.HasPrefix(topic, b.prefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, b.prefix), true
}
