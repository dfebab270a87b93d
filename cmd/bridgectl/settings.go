package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/discovery"
)

// TokenEnv overrides the token from the config file and discovery
const TokenEnv = "BRIDGE_TOKEN"

// DefaultPort is used when nothing names a port
const DefaultPort = 9229

// settings are the defaults read from bridgectl.toml
type settings struct {
	URL          string `toml:"url"`
	Port         int    `toml:"port"`
	Token        string `toml:"token"`
	App          string `toml:"app"`
	DiscoveryDir string `toml:"discovery_dir"`
	Output       string `toml:"output"`
	Window       string `toml:"window"`
	Timeout      string `toml:"timeout"`
}

// defaultSettingsPath is $XDG_CONFIG_HOME/debugbridge/bridgectl.toml
func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "debugbridge", "bridgectl.toml")
}

// loadSettings reads path. A missing file yields zero settings.
func loadSettings(path string) (settings, error) {
	var s settings
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.Timeout != "" {
		if _, err := time.ParseDuration(s.Timeout); err != nil {
			return s, fmt.Errorf("parse %s: timeout: %w", path, err)
		}
	}
	return s, nil
}

// globalOptions are the persistent flags, already merged with settings
type globalOptions struct {
	URL          string
	Port         int
	Token        string
	App          string
	DiscoveryDir string
	Output       string
	Window       string
	Timeout      time.Duration
	Config       string
	Verbose      bool
}

// merge fills options the user did not set on the command line
func (o *globalOptions) merge(s settings, changed func(string) bool, getenv func(string) string) {
	if !changed("url") && s.URL != "" {
		o.URL = s.URL
	}
	if !changed("port") && s.Port != 0 {
		o.Port = s.Port
	}
	if !changed("app") && s.App != "" {
		o.App = s.App
	}
	if !changed("discovery-dir") && s.DiscoveryDir != "" {
		o.DiscoveryDir = s.DiscoveryDir
	}
	if !changed("output") && s.Output != "" {
		o.Output = s.Output
	}
	if !changed("window") && s.Window != "" {
		o.Window = s.Window
	}
	if !changed("timeout") && s.Timeout != "" {
		o.Timeout, _ = time.ParseDuration(s.Timeout)
	}
	if !changed("token") {
		if env := getenv(TokenEnv); env != "" {
			o.Token = env
		} else if s.Token != "" {
			o.Token = s.Token
		}
	}
	if o.DiscoveryDir == "" {
		o.DiscoveryDir = config.DefaultDiscoveryDir()
	}
}

// connection is where and how to reach a bridge
type connection struct {
	BaseURL string
	Token   string
	Source  string
}

// resolve picks the bridge to talk to: an explicit token wins, then the
// discovery file of --app, then the only discovery file present, then
// the default port without a token
func (o *globalOptions) resolve() (connection, error) {
	port := o.Port
	conn := connection{Token: o.Token, Source: "flags"}

	if o.Token == "" {
		rec, err := discovery.Find(o.DiscoveryDir, o.App)
		switch {
		case err == nil:
			conn.Token = rec.Token
			conn.Source = discovery.Path(o.DiscoveryDir, rec.AppID)
			if port == 0 {
				port = rec.Port
			}
		case o.App != "":
			return conn, fmt.Errorf("app %q: %w", o.App, err)
		case errors.Is(err, discovery.ErrNoApps):
			conn.Source = "defaults"
		default:
			return conn, err
		}
	}
	if port == 0 {
		port = DefaultPort
	}

	if o.URL != "" {
		u, err := url.Parse(o.URL)
		if err != nil || u.Host == "" {
			return conn, fmt.Errorf("invalid url %q", o.URL)
		}
		conn.BaseURL = o.URL
		return conn, nil
	}
	conn.BaseURL = "http://127.0.0.1:" + strconv.Itoa(port)
	return conn, nil
}
