package gateway

import (
	"encoding/json"
	"time"
)

// Envelope is the frame delivered to clients. Data is carried opaquely;
// the gateway never inspects business payloads.
type Envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      int64           `json:"ts"`
}

// newFrame serializes the envelope once per broadcast; every subscriber
// receives the same bytes.
func newFrame(channel string, data []byte) ([]byte, error) {
	return json.Marshal(Envelope{
		Channel: channel,
		Data:    data,
		TS:      time.Now().UnixMilli(),
	})
}

// CommandType is the type tag of an inbound client frame.
type CommandType string

const (
	CommandSubscribe   CommandType = "subscribe"
	CommandUnsubscribe CommandType = "unsubscribe"
)

// Command is the only message clients send after the handshake. Anything
// that fails to parse, or carries an unknown type or empty channel, is
// ignored without closing the connection.
type Command struct {
	Type    CommandType `json:"type"`
	Channel string      `json:"channel"`
}

func (c *Command) valid() bool {
	if c.Channel == "" {
		return false
	}
	switch c.Type {
	case CommandSubscribe, CommandUnsubscribe:
		return true
	default:
		return false
	}
}
