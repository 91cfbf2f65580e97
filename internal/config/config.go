// Package config provides agent configuration loaded from environment variables.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "ALERTAGENT"

// Config holds all configuration for the alert agent
type Config struct {
	// Control endpoint
	ServerHost string `envconfig:"SERVER_HOST" default:"192.168.1.100"`
	ServerPort int    `envconfig:"SERVER_PORT" default:"3002"`
	ServerPath string `envconfig:"SERVER_PATH"`

	// Registration
	DeviceClass string `envconfig:"DEVICE_CLASS" default:"android"`

	// Quiescence waits
	ReconnectDelay time.Duration `envconfig:"RECONNECT_DELAY" default:"5s"`
	RetryDelay     time.Duration `envconfig:"RETRY_DELAY" default:"3s"`

	// Transport
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT" default:"10s"`
	WriteTimeout     time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ReadLimit        int64         `envconfig:"READ_LIMIT" default:"65536"`
	PingInterval     time.Duration `envconfig:"PING_INTERVAL" default:"20s"`
	PongWait         time.Duration `envconfig:"PONG_WAIT" default:"30s"`

	// Local collaborators
	PrefsFile   string `envconfig:"PREFS_FILE"`
	ControlAddr string `envconfig:"CONTROL_ADDR" default:"127.0.0.1:8091"`
	TTSCommand  string `envconfig:"TTS_COMMAND" default:"espeak"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load loads configuration from an optional .env file and the environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	var c Config
	if err := envconfig.Process(envPrefix, &c); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if c.PrefsFile == "" {
		path, err := DefaultPrefsPath()
		if err != nil {
			return nil, fmt.Errorf("resolve prefs path: %w", err)
		}
		c.PrefsFile = path
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the values Load cannot default
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServerHost) == "" {
		return fmt.Errorf("%s_SERVER_HOST is required", envPrefix)
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("%s_SERVER_PORT must be between 1 and 65535, got %d", envPrefix, c.ServerPort)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("%s_RECONNECT_DELAY must be positive", envPrefix)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("%s_RETRY_DELAY must be positive", envPrefix)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%s_WRITE_TIMEOUT must be positive", envPrefix)
	}
	if c.PingInterval > 0 && c.PongWait <= c.PingInterval {
		return fmt.Errorf("%s_PONG_WAIT must exceed %s_PING_INTERVAL", envPrefix, envPrefix)
	}
	return nil
}

// Endpoint renders the websocket URL for the configured host
func (c *Config) Endpoint() string {
	return EndpointFor(c.ServerHost, c.ServerPort, c.ServerPath)
}

// EndpointFor renders ws://host:port[/path]
func EndpointFor(host string, port int, path string) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
	}
	if path != "" {
		u.Path = "/" + strings.TrimPrefix(path, "/")
	}
	return u.String()
}

// DefaultPrefsPath returns $XDG_CONFIG_HOME/alertagent/prefs.yml
func DefaultPrefsPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "alertagent", "prefs.yml"), nil
}
