// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all gateway settings.
type Config struct {
	Addr      string `env:"GATEWAY_ADDR" envDefault:":4000"`
	JWTSecret string `env:"GATEWAY_JWT_SECRET,required"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	PresencePrefix string        `env:"PRESENCE_KEY_PREFIX" envDefault:"hubso:"`
	PresenceTTL    time.Duration `env:"PRESENCE_TTL" envDefault:"60s"`

	ReadBufferSize  int `env:"WS_READ_BUFFER" envDefault:"1024"`
	WriteBufferSize int `env:"WS_WRITE_BUFFER" envDefault:"1024"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// RedisAddr returns the host:port of the presence backend.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}
