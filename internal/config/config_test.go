package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("RELAY_SECRET", "s3cret")
	t.Setenv("RELAY_PORT", "9000")
	t.Setenv("RELAY_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("RELAY_INVITE_WINDOW", "45s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "s3cret", cfg.Secret)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, "chat:events", cfg.RedisChannel)
	assert.Equal(t, int64(200000), cfg.ReadLimit)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 3, cfg.InviteLimit)
	assert.Equal(t, 45*time.Second, cfg.InviteWindow)
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("RELAY_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "secret is required")
}

func TestValidate(t *testing.T) {
	cfg := Config{Port: 8080, Secret: "x", ReadLimit: 1, PingPeriod: time.Second, SendBuffer: 1, InviteLimit: 3}
	assert.ErrorContains(t, cfg.Validate(), "invite_window")

	cfg.InviteWindow = time.Second
	assert.NoError(t, cfg.Validate())

	cfg.Port = 0
	assert.Error(t, cfg.Validate())
}
