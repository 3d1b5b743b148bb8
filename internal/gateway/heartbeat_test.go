package gateway

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatTerminatesDeadPeer(t *testing.T) {
	const interval = 100 * time.Millisecond
	g, srv := newTestGateway(t, newFakeBackbone(nil), testConfig(interval))

	conn := dialWS(t, srv, makeToken(t, jwt.MapClaims{}))
	subscribe(t, conn, "inventory")
	waitForSubscribers(t, g, "inventory", 1)

	// Swallow pings instead of answering them: a peer whose transport is
	// up but which never pongs.
	conn.SetPingHandler(func(string) error { return nil })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*interval)))
	start := time.Now()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Less(t, time.Since(start), 5*interval, "dead peer must be terminated within two intervals plus slack")

	require.Eventually(t, func() bool {
		return g.Stats().Connections == 0 && g.Stats().Channels == 0
	}, 2*time.Second, 5*time.Millisecond, "termination must clean up the registry")
}

func TestHeartbeatKeepsResponsivePeerAlive(t *testing.T) {
	const interval = 100 * time.Millisecond
	g, srv := newTestGateway(t, newFakeBackbone(nil), testConfig(interval))

	conn := dialWS(t, srv, makeToken(t, jwt.MapClaims{}))
	subscribe(t, conn, "inventory")
	waitForSubscribers(t, g, "inventory", 1)

	// The default ping handler pongs as long as the client keeps reading.
	// Publish across many heartbeat intervals; every event must arrive.
	for i := 0; i < 6; i++ {
		require.NoError(t, g.Publish("inventory", map[string]any{"seq": i}))
		env := readEnvelope(t, conn)
		assert.Equal(t, "inventory", env.Channel)
		time.Sleep(interval)
	}

	assert.Equal(t, 1, g.Stats().Connections, "a ponging peer is never terminated by the heartbeat")
}
