package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		MaxMessageSize int64         `yaml:"max_message_size_bytes"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		EnableDTLS bool `yaml:"enable_dtls"`
		EnableMux  bool `yaml:"enable_mux"`
	} `yaml:"webrtc"`

	Rooms struct {
		MaxRooms          int           `yaml:"max_rooms"`
		MaxViewersPerRoom int           `yaml:"max_viewers_per_room"`
		IdleTimeout       time.Duration `yaml:"idle_timeout"`
	} `yaml:"rooms"`

	Video struct {
		Codec      string `yaml:"codec"`
		MaxBitrate int    `yaml:"max_bitrate"`
		Width      int    `yaml:"width"`
		Height     int    `yaml:"height"`
		Framerate  int    `yaml:"framerate"`
	} `yaml:"video"`

	Audio struct {
		Codec      string `yaml:"codec"`
		SampleRate int    `yaml:"sample_rate"`
		Channels   int    `yaml:"channels"`
	} `yaml:"audio"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		Enabled        bool          `yaml:"enabled"`
		JWTSecret      string        `yaml:"jwt_secret"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint"`
		SampleRate     float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}
	if c.Signal.MaxMessageSize < 0 {
		return fmt.Errorf("signal.max_message_size_bytes must be >= 0")
	}

	if c.Rooms.MaxRooms < 0 {
		return fmt.Errorf("rooms.max_rooms must be >= 0")
	}
	if c.Rooms.MaxViewersPerRoom < 0 {
		return fmt.Errorf("rooms.max_viewers_per_room must be >= 0")
	}
	if c.Rooms.IdleTimeout <= 0 {
		return fmt.Errorf("rooms.idle_timeout must be > 0")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be > 0 when auth.enabled=true")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file is not an error; defaults are used.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.MaxMessageSize = 64 * 1024

	cfg.WebRTC.EnableDTLS = true
	cfg.WebRTC.EnableMux = true

	cfg.Rooms.MaxRooms = 0 // unlimited
	cfg.Rooms.MaxViewersPerRoom = 0
	cfg.Rooms.IdleTimeout = 5 * time.Minute

	cfg.Video.Codec = "VP8"
	cfg.Video.MaxBitrate = 2500
	cfg.Video.Width = 1280
	cfg.Video.Height = 720
	cfg.Video.Framerate = 30

	cfg.Audio.Codec = "opus"
	cfg.Audio.SampleRate = 48000
	cfg.Audio.Channels = 2

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.Enabled = false
	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 15 * time.Minute
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 0.1

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("STREAMCAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("STREAMCAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("STREAMCAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("STREAMCAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
