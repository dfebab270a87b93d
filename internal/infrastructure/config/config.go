package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/debugbridge/internal/api/middleware"
	"github.com/GriffinCanCode/debugbridge/internal/domain/bridge"
	"github.com/GriffinCanCode/debugbridge/internal/domain/framer"
	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
	"github.com/GriffinCanCode/debugbridge/internal/host/headless"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/logging"
)

// Prefix is prepended to every environment variable
const Prefix = "BRIDGE"

// Host modes
const (
	ModeHeadless = "headless"
	ModeRemote   = "remote"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig               `envconfig:"SERVER"`
	Bridge    bridge.Config              `envconfig:"CALL"`
	Framer    framer.Config              `envconfig:"FRAMER"`
	Relay     relay.Config               `envconfig:"RELAY"`
	Host      HostConfig                 `envconfig:"HOST"`
	Auth      AuthConfig                 `envconfig:"AUTH"`
	Logging   logging.Config             `envconfig:"LOG"`
	RateLimit middleware.RateLimitConfig `envconfig:"RATE_LIMIT"`
	CORS      middleware.CORSConfig      `envconfig:"CORS"`
	NATS      NATSConfig                 `envconfig:"NATS"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `envconfig:"ADDR" default:"127.0.0.1"`
	Port            int           `envconfig:"PORT" default:"9229"`
	BodyLimit       int64         `envconfig:"BODY_LIMIT" default:"1048576"`
	AppID           string        `envconfig:"APP_ID" default:"debugbridge"`
	DiscoveryDir    string        `envconfig:"DISCOVERY_DIR"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	SlowRequest     time.Duration `envconfig:"SLOW_REQUEST" default:"2s"`
}

// Addr returns host:port for net.Listen
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// HostConfig selects and configures the sandbox host.
type HostConfig struct {
	Mode     string          `envconfig:"MODE" default:"headless"`
	Headless headless.Config `envconfig:"HEADLESS"`
}

// AuthConfig holds token settings. An empty token means one is generated
// at startup.
type AuthConfig struct {
	Token string `envconfig:"TOKEN"`
}

// NATSConfig holds the optional relay mirror settings.
type NATSConfig struct {
	URL           string        `envconfig:"URL"`
	SubjectPrefix string        `envconfig:"SUBJECT_PREFIX" default:"debugbridge"`
	Streams       []string      `envconfig:"STREAMS" default:"console,events,logs"`
	FlushTimeout  time.Duration `envconfig:"FLUSH_TIMEOUT" default:"2s"`
}

// Enabled reports whether the mirror should run
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Server.DiscoveryDir == "" {
		cfg.Server.DiscoveryDir = DefaultDiscoveryDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9229,
			BodyLimit:       middleware.DefaultBodyLimit,
			AppID:           "debugbridge",
			DiscoveryDir:    DefaultDiscoveryDir(),
			ShutdownTimeout: 10 * time.Second,
			SlowRequest:     2 * time.Second,
		},
		Bridge: bridge.DefaultConfig(),
		Framer: framer.DefaultConfig(),
		Relay:  relay.DefaultConfig(),
		Host: HostConfig{
			Mode:     ModeHeadless,
			Headless: headless.DefaultConfig(),
		},
		Logging:   logging.DefaultConfig(),
		RateLimit: middleware.DefaultRateLimitConfig(),
		CORS:      middleware.DefaultCORSConfig(),
		NATS: NATSConfig{
			SubjectPrefix: "debugbridge",
			Streams:       []string{relay.StreamConsole, relay.StreamEvents, relay.StreamLogs},
			FlushTimeout:  2 * time.Second,
		},
	}
}

// Validate rejects settings the server cannot start with
func (c *Config) Validate() error {
	switch c.Host.Mode {
	case ModeHeadless, ModeRemote:
	default:
		return fmt.Errorf("invalid host mode %q: want %s or %s", c.Host.Mode, ModeHeadless, ModeRemote)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.AppID == "" {
		return fmt.Errorf("app id is empty")
	}
	if c.Bridge.MaxTimeout <= 0 {
		return fmt.Errorf("max timeout must be positive")
	}
	return nil
}

// DefaultDiscoveryDir is where discovery files live unless configured:
// the user config directory, falling back to the temp directory
func DefaultDiscoveryDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "debugbridge", "apps")
	}
	return filepath.Join(os.TempDir(), "debugbridge", "apps")
}
