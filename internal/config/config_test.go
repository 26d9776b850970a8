package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.RateLimit.Store)
	assert.Equal(t, "open", cfg.RateLimit.FailurePolicy)
	assert.Equal(t, 5, cfg.RateLimit.CacheTTLSeconds)
	assert.Equal(t, 60, cfg.TokenAuth.CacheTTLSeconds)
	assert.Equal(t, 24, cfg.JWT.ExpiryHours)

	// A matching-anything rule is always present.
	require.Len(t, cfg.RateLimit.Rules, 1)
	assert.Empty(t, cfg.RateLimit.Rules[0].Endpoint)
	assert.Empty(t, cfg.RateLimit.Rules[0].Method)
	assert.Equal(t, 60, cfg.RateLimit.Rules[0].Limit)
}

func TestLoadKeepsDeclaredRuleOrder(t *testing.T) {
	path := writeConfig(t, `{
		"rate_limit": {
			"rules": [
				{"endpoint": "/v1/search", "method": "GET", "limit": 3, "window_seconds": 60, "block_for_seconds": 120},
				{"limit": 100, "window_seconds": 60}
			]
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.RateLimit.Rules, 2, "a declared default rule must not be duplicated")
	assert.Equal(t, "/v1/search", cfg.RateLimit.Rules[0].Endpoint)
	assert.Equal(t, 120, cfg.RateLimit.Rules[0].BlockForSeconds)
	assert.Empty(t, cfg.RateLimit.Rules[1].Endpoint)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("JWT_SECRET", "from-env")

	path := writeConfig(t, `{"server": {"port": "8080"}, "database": {"dsn": "postgres://file/db"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "postgres://env/db", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "unknown store",
			body: `{"rate_limit": {"store": "memcached"}}`,
		},
		{
			name: "unknown failure policy",
			body: `{"rate_limit": {"failure_policy": "maybe"}}`,
		},
		{
			name: "non-positive limit",
			body: `{"rate_limit": {"rules": [{"limit": 0, "window_seconds": 60}]}}`,
		},
		{
			name: "missing window",
			body: `{"rate_limit": {"rules": [{"limit": 10}]}}`,
		},
		{
			name: "token limit without token window",
			body: `{"rate_limit": {"rules": [{"limit": 10, "window_seconds": 60, "token_limit": 5}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestGetRedisAddr(t *testing.T) {
	var r RedisConfig
	assert.Equal(t, "localhost:6379", r.GetRedisAddr())

	r = RedisConfig{Host: "redis.internal", Port: "6380"}
	assert.Equal(t, "redis.internal:6380", r.GetRedisAddr())
}
