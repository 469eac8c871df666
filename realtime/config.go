package realtime

import (
	"time"

	"github.com/Netflix/go-env"
)

// Config defines the client-side environment variables. The zero value of
// any field is replaced by its default, so a hand-built Config with only the
// URL set is also usable.
type Config struct {
	// URL is the realtime transport endpoint.
	URL string `env:"STUDYCIRCLE_SOCKET_URL,default=ws://localhost:5000/v0/ws"`
	// ReconnectBase is the initial delay between reconnect attempts.
	ReconnectBase time.Duration `env:"STUDYCIRCLE_RECONNECT_BASE,default=1s"`
	// ReconnectMax caps the delay between reconnect attempts.
	ReconnectMax time.Duration `env:"STUDYCIRCLE_RECONNECT_MAX,default=5s"`
	// ReconnectAttempts bounds retries before the connection is marked failed.
	ReconnectAttempts int `env:"STUDYCIRCLE_RECONNECT_ATTEMPTS,default=5"`
}

// ConfigFromEnv loads configuration from process environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = "ws://localhost:5000/v0/ws"
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 5 * time.Second
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 5
	}
}
