package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Addr)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.Empty(t, cfg.RedisPassword)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, "hubso:", cfg.PresencePrefix)
	assert.Equal(t, 60*time.Second, cfg.PresenceTTL)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
	assert.Equal(t, 1024, cfg.WriteBufferSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", "s3cret")
	t.Setenv("GATEWAY_ADDR", ":9000")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_PASSWORD", "hunter2")
	t.Setenv("PRESENCE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr())
	assert.Equal(t, "hunter2", cfg.RedisPassword)
	assert.Equal(t, 30*time.Second, cfg.PresenceTTL)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("GATEWAY_JWT_SECRET", "") // register restore
	os.Unsetenv("GATEWAY_JWT_SECRET")

	_, err := Load()
	assert.Error(t, err)
}
