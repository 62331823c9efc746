// Package config loads the client configuration from an optional JSON file
// and the environment. Environment variables take precedence over the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultConfigFile = "pipewatch.json"

// Config holds the runtime settings of the synchronization client.
type Config struct {
	// BackendURL is the base HTTP URL of the analysis backend.
	BackendURL string `json:"backend-url" mapstructure:"backend-url"`

	// WSEndpoint is the base WebSocket URL of the push status channel.
	// Derived from BackendURL when empty.
	WSEndpoint string `json:"ws-endpoint" mapstructure:"ws-endpoint"`

	// PollInterval is the fixed interval of the snapshot polling safety net.
	PollInterval time.Duration `json:"poll-interval" mapstructure:"poll-interval"`

	// StaggerDelay separates successive catch-up reveals within one
	// reconciliation pass.
	StaggerDelay time.Duration `json:"stagger-delay" mapstructure:"stagger-delay"`

	// ReconnectDelay is the fixed wait before a push-channel redial.
	ReconnectDelay time.Duration `json:"reconnect-delay" mapstructure:"reconnect-delay"`

	LogLevel string `json:"log-level" mapstructure:"log-level"`
}

var optionalFields = map[string]any{
	"backend-url":     "http://localhost:8000",
	"poll-interval":   3 * time.Second,
	"stagger-delay":   350 * time.Millisecond,
	"reconnect-delay": 2 * time.Second,
	"log-level":       "INFO",
}

// Load reads configuration from path (defaultConfigFile when empty) and the
// environment. A missing file is not an error; every field has a default.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigFile
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix("pipewatch")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	for field, defaultValue := range optionalFields {
		v.SetDefault(field, defaultValue)
	}

	// The file is optional; only a malformed file is fatal.
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if cfg.WSEndpoint == "" {
		cfg.WSEndpoint = deriveWSEndpoint(cfg.BackendURL)
	}

	return &cfg, nil
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	// viper reports a plain *fs.PathError when SetConfigFile points at a
	// file that does not exist.
	return strings.Contains(err.Error(), "no such file")
}

// deriveWSEndpoint maps the backend's HTTP base URL onto its WebSocket
// scheme, mirroring how browser clients derive the push endpoint.
func deriveWSEndpoint(backendURL string) string {
	switch {
	case strings.HasPrefix(backendURL, "https://"):
		return "wss://" + strings.TrimPrefix(backendURL, "https://")
	case strings.HasPrefix(backendURL, "http://"):
		return "ws://" + strings.TrimPrefix(backendURL, "http://")
	default:
		return backendURL
	}
}
