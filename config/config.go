// Package config provides typed configuration loading for the StudyCircle
// realtime server.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for the realtime server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig contains HTTP/WebSocket server settings.
type ServerConfig struct {
	Listen           string   `yaml:"listen"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	UseXForwardedFor bool     `yaml:"use_x_forwarded_for"`
	ReadTimeout      int      `yaml:"read_timeout"`
	WriteTimeout     int      `yaml:"write_timeout"`
	IdleTimeout      int      `yaml:"idle_timeout"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Name            string `yaml:"name"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
	SQLTimeout      int    `yaml:"sql_timeout"`
}

// DSN returns a PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.SQLTimeout,
	)
}

// RedisConfig contains Redis settings for cross-node fan-out.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	NodeID   string `yaml:"node_id"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	Basic BasicAuthConfig `yaml:"basic"`
	Token TokenAuthConfig `yaml:"token"`
}

// BasicAuthConfig contains basic (login/password) auth settings.
type BasicAuthConfig struct {
	MinLoginLength    int `yaml:"min_login_length"`
	MinPasswordLength int `yaml:"min_password_length"`
}

// TokenAuthConfig contains token auth settings.
type TokenAuthConfig struct {
	Key      string `yaml:"key"`
	ExpireIn int    `yaml:"expire_in"`
}

// LimitsConfig contains event size and publish rate limits.
type LimitsConfig struct {
	MaxEventBytes    int `yaml:"max_event_bytes"`
	PublishRate      int `yaml:"publish_rate"`       // events per window
	PublishWindowSec int `yaml:"publish_window_sec"` // window length in seconds
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars expands ${VAR} and ${VAR:default} patterns in the config.
func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		parts := re.FindStringSubmatch(match)
		envVar := parts[1]
		defaultVal := ""
		if len(parts) > 2 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(envVar); val != "" {
			return val
		}
		return defaultVal
	})
}

// applyDefaults sets default values for unset fields.
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Listen == "" {
		c.Server.Listen = ":5000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10
	}

	// Database defaults
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Name == "" {
		c.Database.Name = "studycircle"
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 50
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 50
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 60
	}
	if c.Database.SQLTimeout == 0 {
		c.Database.SQLTimeout = 10
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.NodeID == "" {
		c.Redis.NodeID, _ = os.Hostname()
	}

	// Auth defaults
	if c.Auth.Basic.MinLoginLength == 0 {
		c.Auth.Basic.MinLoginLength = 4
	}
	if c.Auth.Basic.MinPasswordLength == 0 {
		c.Auth.Basic.MinPasswordLength = 6
	}
	if c.Auth.Token.ExpireIn == 0 {
		c.Auth.Token.ExpireIn = 1209600 // 2 weeks
	}

	// Limits defaults
	if c.Limits.MaxEventBytes == 0 {
		c.Limits.MaxEventBytes = 32768 // 32KB
	}
	if c.Limits.PublishRate == 0 {
		c.Limits.PublishRate = 30
	}
	if c.Limits.PublishWindowSec == 0 {
		c.Limits.PublishWindowSec = 10
	}
}

// insecureKeys are example values from docs and old sample configs that must
// never reach production.
var insecureKeys = map[string]bool{
	"wfaY2RgF2S1OQI/ZlK+LSrp1KB2jwAdGAIHQ7JZn+Kc=": true,
	"changeme": true,
	"secret":   true,
}

// validate checks that required fields are set and safe to use.
func (c *Config) validate() error {
	if c.Auth.Token.Key == "" {
		return fmt.Errorf("auth.token.key is required")
	}
	if insecureKeys[c.Auth.Token.Key] {
		return fmt.Errorf("auth.token.key is using an insecure default value - generate a new key")
	}
	if len(c.Auth.Token.Key) < 32 {
		return fmt.Errorf("auth.token.key must be at least 32 characters")
	}
	return nil
}
