// Package firehose mirrors every published event onto a Kafka topic for
// downstream consumers (audit, analytics). Delivery is best effort and
// fully decoupled from client broadcast; the gateway works the same with
// the sink disabled.
package firehose

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"realtime-gateway/internal/config"
)

type Sink struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// New returns nil when no brokers are configured; all Sink methods accept
// a nil receiver so callers need no guard.
func New(cfg *config.KafkaConfig, logger *slog.Logger) *Sink {
	if len(cfg.Brokers) == 0 {
		return nil
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("event sink delivery failed", "count", len(messages), "error", err)
			}
		},
	}

	logger.Info("event sink enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return &Sink{writer: writer, logger: logger}
}

// Emit queues one event, keyed by channel so per-channel order survives
// partitioning. The async writer never blocks the broadcast path.
func (s *Sink) Emit(channel string, payload []byte) {
	if s == nil {
		return
	}
	err := s.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(channel),
		Value: payload,
	})
	if err != nil {
		s.logger.Warn("event sink enqueue failed", "channel", channel, "error", err)
	}
}

func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.writer.Close()
}
