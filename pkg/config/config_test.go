package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Rooms.IdleTimeout)
	assert.Equal(t, "VP8", cfg.Video.Codec)
	assert.Equal(t, "opus", cfg.Audio.Codec)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Auth.Enabled)
	assert.False(t, cfg.RateLimiting.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  address: ":9090"
rooms:
  max_rooms: 10
  max_viewers_per_room: 100
redis:
  enabled: true
  address: "redis:6379"
  pool_size: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 10, cfg.Rooms.MaxRooms)
	assert.Equal(t, 100, cfg.Rooms.MaxViewersPerRoom)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	// Untouched sections keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STREAMCAST_SERVER_ADDRESS", ":7070")
	t.Setenv("STREAMCAST_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty server address",
			mutate:  func(c *Config) { c.Server.Address = "" },
			wantErr: "server.address",
		},
		{
			name:    "zero read timeout",
			mutate:  func(c *Config) { c.Server.ReadTimeout = 0 },
			wantErr: "server.read_timeout",
		},
		{
			name:    "negative max rooms",
			mutate:  func(c *Config) { c.Rooms.MaxRooms = -1 },
			wantErr: "rooms.max_rooms",
		},
		{
			name:    "zero idle timeout",
			mutate:  func(c *Config) { c.Rooms.IdleTimeout = 0 },
			wantErr: "rooms.idle_timeout",
		},
		{
			name: "redis enabled without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
			wantErr: "redis.address",
		},
		{
			name: "auth enabled without secret",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.JWTSecret = ""
			},
			wantErr: "auth.jwt_secret",
		},
		{
			name: "rate limiting enabled without rps",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.RequestsPerSecond = 0
			},
			wantErr: "rate_limiting.requests_per_second",
		},
		{
			name: "tracing sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 1.5
			},
			wantErr: "tracing.sample_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
