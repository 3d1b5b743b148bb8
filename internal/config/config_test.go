package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCookieName(t *testing.T) {
	assert.Equal(t, "session", cookieName("session", true), "explicit name wins")
	assert.Equal(t, "__Secure-admin-session", cookieName("", true))
	assert.Equal(t, "admin-session", cookieName("", false))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"https://a.example.com"}, splitList("https://a.example.com"))
	assert.Equal(t,
		[]string{"https://a.example.com", "https://b.example.com"},
		splitList(" https://a.example.com, https://b.example.com ,"))
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Server.AllowedOrigins, "empty allow-list admits every origin")
	assert.Equal(t, "25s", cfg.Heartbeat.Interval.String())
	assert.Equal(t, "ws:", cfg.Backbone.TopicPrefix)
	assert.Equal(t, "admin-session", cfg.Session.CookieName)
	assert.Empty(t, cfg.Kafka.Brokers, "firehose disabled unless brokers are configured")

	assert.Same(t, cfg, Load(), "configuration is loaded once")
}
