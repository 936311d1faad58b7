package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("ACCESS_TTL", "")
	t.Setenv("APP_ENV", "")

	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.False(t, cfg.Production())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("ACCESS_TTL", "1h")
	t.Setenv("AUTH_RATE_LIMIT_PER_MIN", "7")

	cfg := Load()

	assert.True(t, cfg.Production())
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, time.Hour, cfg.AccessTTL)
	assert.Equal(t, 7, cfg.AuthRateLimitPerMin)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("REFRESH_TTL", "tomorrow")
	t.Setenv("AUTH_RATE_LIMIT_PER_MIN", "many")

	cfg := Load()

	assert.Equal(t, 24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 30, cfg.AuthRateLimitPerMin)
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "")
	assert.Equal(t, []string{"*"}, Load().CORSOrigins)

	t.Setenv("CORS_ORIGINS", " https://portal.example.edu , ,http://localhost:5173")
	assert.Equal(t, []string{"https://portal.example.edu", "http://localhost:5173"}, Load().CORSOrigins)
}
