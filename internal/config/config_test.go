package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultModelsDir, cfg.ModelsDir)
	assert.Equal(t, DefaultAlertFloor, cfg.AlertFloor)
	assert.Equal(t, DefaultProfileWindow, cfg.ProfileWindow)
	assert.Equal(t, DefaultProfileRetention, cfg.ProfileRetention)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("ALERT_FLOOR", "60")
	t.Setenv("PROFILE_RETENTION", "720h")
	t.Setenv("PROFILE_WINDOW", "50")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, 60.0, cfg.AlertFloor)
	assert.Equal(t, 720*time.Hour, cfg.ProfileRetention)
	assert.Equal(t, 50, cfg.ProfileWindow)
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("ALERT_FLOOR", "not-a-number")
	t.Setenv("RATE_LIMIT_RPM", "zero")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultAlertFloor, cfg.AlertFloor)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPM)
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"alert floor above 100", func(c *Config) { c.AlertFloor = 101 }},
		{"negative alert floor", func(c *Config) { c.AlertFloor = -1 }},
		{"zero profile window", func(c *Config) { c.ProfileWindow = 0 }},
		{"zero retention", func(c *Config) { c.ProfileRetention = 0 }},
		{"zero rate limit", func(c *Config) { c.RateLimitRPM = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				AlertFloor:       DefaultAlertFloor,
				ProfileRetention: DefaultProfileRetention,
				ProfileWindow:    DefaultProfileWindow,
				RateLimitRPM:     DefaultRateLimit,
			}
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
