package config

import (
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Session   SessionConfig
	Heartbeat HeartbeatConfig
	Backbone  BackboneConfig
	Kafka     KafkaConfig
}

var (
	instance *Config
	once     sync.Once
)

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

type SessionConfig struct {
	Secret     string
	CookieName string
}

type HeartbeatConfig struct {
	Interval time.Duration
}

type BackboneConfig struct {
	TopicPrefix string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from the environment exactly once. Subsequent
// calls return the same instance.
func Load() *Config {
	once.Do(func() {
		viper.SetDefault("GATEWAY_HOST", "")
		viper.SetDefault("GATEWAY_PORT", "8080")
		viper.SetDefault("GATEWAY_READ_TIMEOUT", 30*time.Second)
		viper.SetDefault("GATEWAY_WRITE_TIMEOUT", 30*time.Second)
		viper.SetDefault("GATEWAY_ALLOWED_ORIGINS", "")
		viper.SetDefault("GATEWAY_HEARTBEAT_INTERVAL", 25*time.Second)
		viper.SetDefault("GATEWAY_SESSION_SECRET", "secret")
		viper.SetDefault("GATEWAY_COOKIE_NAME", "")
		viper.SetDefault("GATEWAY_COOKIE_SECURE", false)
		viper.SetDefault("GATEWAY_TOPIC_PREFIX", "ws:")
		viper.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("REDIS_MAX_RETRIES", 3)
		viper.SetDefault("REDIS_DIAL_TIMEOUT", 5*time.Second)
		viper.SetDefault("REDIS_READ_TIMEOUT", 3*time.Second)
		viper.SetDefault("REDIS_WRITE_TIMEOUT", 3*time.Second)
		viper.SetDefault("REDIS_POOL_SIZE", 100)
		viper.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
		viper.SetDefault("KAFKA_BROKERS", "")
		viper.SetDefault("KAFKA_TOPIC", "admin.events")
		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Host:           viper.GetString("GATEWAY_HOST"),
				Port:           viper.GetString("GATEWAY_PORT"),
				ReadTimeout:    viper.GetDuration("GATEWAY_READ_TIMEOUT"),
				WriteTimeout:   viper.GetDuration("GATEWAY_WRITE_TIMEOUT"),
				AllowedOrigins: splitList(viper.GetString("GATEWAY_ALLOWED_ORIGINS")),
			},
			Redis: RedisConfig{
				Addr:         viper.GetString("REDIS_ADDR"),
				Password:     viper.GetString("REDIS_PASSWORD"),
				DB:           viper.GetInt("REDIS_DB"),
				MaxRetries:   viper.GetInt("REDIS_MAX_RETRIES"),
				DialTimeout:  viper.GetDuration("REDIS_DIAL_TIMEOUT"),
				ReadTimeout:  viper.GetDuration("REDIS_READ_TIMEOUT"),
				WriteTimeout: viper.GetDuration("REDIS_WRITE_TIMEOUT"),
				PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
				MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
			},
			Session: SessionConfig{
				Secret: viper.GetString("GATEWAY_SESSION_SECRET"),
				CookieName: cookieName(
					viper.GetString("GATEWAY_COOKIE_NAME"),
					viper.GetBool("GATEWAY_COOKIE_SECURE"),
				),
			},
			Heartbeat: HeartbeatConfig{
				Interval: viper.GetDuration("GATEWAY_HEARTBEAT_INTERVAL"),
			},
			Backbone: BackboneConfig{
				TopicPrefix: viper.GetString("GATEWAY_TOPIC_PREFIX"),
			},
			Kafka: KafkaConfig{
				Brokers: splitList(viper.GetString("KAFKA_BROKERS")),
				Topic:   viper.GetString("KAFKA_TOPIC"),
			},
		}
	})

	return instance
}

// cookieName resolves the session cookie name. An explicit name wins;
// otherwise the name depends on whether the application issues cookies with
// the __Secure- prefix, which browsers only accept over HTTPS.
func cookieName(explicit string, secure bool) string {
	if explicit != "" {
		return explicit
	}
	if secure {
		return "__Secure-admin-session"
	}
	return "admin-session"
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
