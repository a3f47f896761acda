package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Engine struct {
		// Empirical timeouts; tunable rather than load-bearing exact values.
		ReconnectGuard    time.Duration `yaml:"reconnect_guard"`
		ICERestartGrace   time.Duration `yaml:"ice_restart_grace"`
		DisconnectTimeout time.Duration `yaml:"disconnect_timeout"`
		RingTimeout       time.Duration `yaml:"ring_timeout"`
	} `yaml:"engine"`

	Quality struct {
		SampleInterval    time.Duration `yaml:"sample_interval"`
		UpgradeSamples    int           `yaml:"upgrade_samples"`
		DowngradeSamples  int           `yaml:"downgrade_samples"`
		AudioFloorKbps    int           `yaml:"audio_floor_kbps"`
	} `yaml:"quality"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Relay struct {
		Address           string        `yaml:"address"`
		PingInterval      time.Duration `yaml:"ping_interval"`
		PongTimeout       time.Duration `yaml:"pong_timeout"`
		ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
		MessagesPerSecond float64       `yaml:"messages_per_second"`
		Burst             int           `yaml:"burst"`
		MaxMessageBytes   int64         `yaml:"max_message_bytes"`
	} `yaml:"relay"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Engine.ReconnectGuard <= 0 {
		return fmt.Errorf("engine.reconnect_guard must be > 0")
	}
	if c.Engine.ICERestartGrace <= 0 {
		return fmt.Errorf("engine.ice_restart_grace must be > 0")
	}
	if c.Engine.DisconnectTimeout <= 0 {
		return fmt.Errorf("engine.disconnect_timeout must be > 0")
	}
	if c.Engine.RingTimeout <= 0 {
		return fmt.Errorf("engine.ring_timeout must be > 0")
	}

	if c.Quality.SampleInterval <= 0 {
		return fmt.Errorf("quality.sample_interval must be > 0")
	}
	if c.Quality.UpgradeSamples <= 0 {
		return fmt.Errorf("quality.upgrade_samples must be > 0")
	}
	if c.Quality.DowngradeSamples <= 0 {
		return fmt.Errorf("quality.downgrade_samples must be > 0")
	}
	if c.Quality.DowngradeSamples > c.Quality.UpgradeSamples {
		return fmt.Errorf("quality.downgrade_samples must be <= upgrade_samples: downgrades must not be slower than upgrades")
	}
	if c.Quality.AudioFloorKbps <= 0 {
		return fmt.Errorf("quality.audio_floor_kbps must be > 0")
	}

	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	if c.Redis.Address == "" {
		return fmt.Errorf("redis.address must not be empty")
	}
	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("redis.pool_size must be > 0")
	}

	if c.Relay.Address == "" {
		return fmt.Errorf("relay.address must not be empty")
	}
	if c.Relay.PingInterval <= 0 {
		return fmt.Errorf("relay.ping_interval must be > 0")
	}
	if c.Relay.PongTimeout <= 0 {
		return fmt.Errorf("relay.pong_timeout must be > 0")
	}
	if c.Relay.MessagesPerSecond <= 0 {
		return fmt.Errorf("relay.messages_per_second must be > 0")
	}
	if c.Relay.Burst <= 0 {
		return fmt.Errorf("relay.burst must be > 0")
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	if c.Tracing.Enabled && c.Tracing.JaegerURL == "" {
		return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file yields defaults rather than an error.
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

	cfg.Engine.ReconnectGuard = 5 * time.Second
	cfg.Engine.ICERestartGrace = 5 * time.Second
	cfg.Engine.DisconnectTimeout = 8 * time.Second
	cfg.Engine.RingTimeout = 45 * time.Second

	cfg.Quality.SampleInterval = 2 * time.Second
	cfg.Quality.UpgradeSamples = 5
	cfg.Quality.DowngradeSamples = 2
	cfg.Quality.AudioFloorKbps = 100

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Relay.Address = ":8081"
	cfg.Relay.PingInterval = 30 * time.Second
	cfg.Relay.PongTimeout = 60 * time.Second
	cfg.Relay.ShutdownTimeout = 30 * time.Second
	cfg.Relay.MessagesPerSecond = 100
	cfg.Relay.Burst = 200
	cfg.Relay.MaxMessageBytes = 64 * 1024

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("FAMCALL_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if addr := os.Getenv("FAMCALL_RELAY_ADDRESS"); addr != "" {
		c.Relay.Address = addr
	}
	if level := os.Getenv("FAMCALL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if url := os.Getenv("FAMCALL_JAEGER_URL"); url != "" {
		c.Tracing.JaegerURL = url
	}
}
