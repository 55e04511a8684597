package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "conduit", cfg.Key)
	assert.Equal(t, "/", cfg.Path)
	assert.False(t, cfg.Relay.Enabled)
	assert.Equal(t, 64*1024, cfg.Relay.MaxMessageSize)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "/admin/api/v1", cfg.AdminBasePath())
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONDUIT_PORT", "9100")
	t.Setenv("CONDUIT_KEY", "mykey")
	t.Setenv("CONDUIT_ALLOWED_ORIGINS", "https://a.example, https://*.b.example")
	t.Setenv("CONDUIT_RELAY_ENABLED", "true")
	t.Setenv("CONDUIT_RATE_LIMIT_MAX_TOKENS", "25")
	t.Setenv("CONDUIT_RATE_LIMIT_REFILL_RATE", "2.5")
	t.Setenv("CONDUIT_ALIVE_TIMEOUT_MS", "45000")
	t.Setenv("CONDUIT_ADMIN_AUTH_METHODS", "apiKey,jwt")
	t.Setenv("CONDUIT_ADMIN_API_KEY", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "mykey", cfg.Key)
	assert.Equal(t, []string{"https://a.example", "https://*.b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Relay.Enabled)
	assert.Equal(t, 25, cfg.RateLimit.MaxTokens)
	assert.InDelta(t, 2.5, cfg.RateLimit.RefillRate, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.AliveTimeout)
	assert.Equal(t, []string{"apiKey", "jwt"}, cfg.Admin.Auth.Methods)
	assert.Equal(t, "secret", cfg.Admin.Auth.APIKey)
}

func TestInvalidEnvValuesAreIgnored(t *testing.T) {
	t.Setenv("CONDUIT_PORT", "not-a-number")
	t.Setenv("CONDUIT_RELAY_ENABLED", "maybe")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.False(t, cfg.Relay.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad port", func(c *Config) { c.Port = 0 }, false},
		{"bad path", func(c *Config) { c.Path = "noslash" }, false},
		{"empty key", func(c *Config) { c.Key = "" }, false},
		{"bad auth method", func(c *Config) { c.Admin.Auth.Methods = []string{"oauth"} }, false},
		{"bad rate tokens", func(c *Config) { c.RateLimit.MaxTokens = 0 }, false},
		{"rate tokens ignored when disabled", func(c *Config) {
			c.RateLimit.Enabled = false
			c.RateLimit.MaxTokens = 0
		}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSanitizedOmitsSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Key = "client-secret"
	cfg.Admin.Auth.APIKey = "admin-secret"
	cfg.Admin.Auth.JWTSecret = "jwt-secret"
	cfg.Admin.Auth.BasicPassword = "$2a$12$hash"

	data, err := json.Marshal(cfg.Sanitized())
	require.NoError(t, err)
	flat := string(data)
	for _, secret := range []string{"client-secret", "admin-secret", "jwt-secret", "$2a$12$hash"} {
		assert.NotContains(t, flat, secret)
	}
	assert.Contains(t, flat, "9000")
}
