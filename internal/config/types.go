package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config represents the complete voxgate configuration.
type Config struct {
	Service  ServiceConfig         `yaml:"service"`
	Socket   SocketConfig          `yaml:"socket"`
	Dispatch DispatchConfig        `yaml:"dispatch"`
	State    StateConfig           `yaml:"state"`
	API      APIConfig             `yaml:"api,omitempty"`
	Plugins  map[string]PluginConf `yaml:"plugins"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// SocketConfig defines the command socket settings.
type SocketConfig struct {
	// Path is the filesystem path of the Unix domain socket. A stale socket
	// file at this path is removed on startup.
	Path string `yaml:"path"`
	// Mode is the octal permission string applied to the socket before the
	// first connection is accepted, e.g. "0600". Empty leaves the default.
	Mode string `yaml:"mode,omitempty"`
	// MaxFrameLength is the largest command line (excluding the newline)
	// accepted on a connection. Exceeding it without a terminator is a fatal
	// framing error for that connection.
	MaxFrameLength int `yaml:"max_frame_length"`
}

// FileMode parses the octal Mode string. Returns (0, false, nil) when Mode
// is empty.
func (s SocketConfig) FileMode() (os.FileMode, bool, error) {
	if s.Mode == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(s.Mode, 8, 32)
	if err != nil {
		return 0, false, fmt.Errorf("invalid socket mode %q: %w", s.Mode, err)
	}
	return os.FileMode(v), true, nil
}

// DispatchConfig defines per-connection command dispatch settings.
type DispatchConfig struct {
	// MaxInFlight caps the number of concurrently executing command handlers
	// per connection. Frames arriving while the cap is reached are dropped
	// and counted rather than queued, so the read loop never stalls.
	MaxInFlight int `yaml:"max_in_flight"`
}

// StateConfig defines audit storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines the HTTP status server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// APIKey is the bearer token required on all endpoints except /healthz.
	APIKey string `yaml:"api_key"`
}

// PluginConf defines configuration for a single built-in plugin.
type PluginConf struct {
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "voxgate",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Socket: SocketConfig{
			Path:           "./data/voxgate.sock",
			Mode:           "0600",
			MaxFrameLength: 16384,
		},
		Dispatch: DispatchConfig{
			MaxInFlight: 64,
		},
		State: StateConfig{
			Path: "./data/audit.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8090",
		},
		Plugins: map[string]PluginConf{
			"basic": {Enabled: true},
		},
	}
}
