package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML/JSON strings like
// "30s" or "2m", or from bare numbers interpreted as milliseconds.
type Duration time.Duration

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		parsed, err := time.ParseDuration(s[1 : len(s)-1])
		if err != nil {
			return fmt.Errorf("invalid duration %s: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var ms float64
	if _, err := fmt.Sscanf(s, "%f", &ms); err != nil {
		return fmt.Errorf("invalid duration %s: %w", s, err)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

func (d *Duration) set(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(val) * time.Millisecond)
	case float64:
		*d = Duration(time.Duration(val) * time.Millisecond)
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level server configuration.
type Config struct {
	Server  ServerConfig       `json:"server" yaml:"server"`
	Logging LoggingConfig      `json:"logging,omitempty" yaml:"logging,omitempty"`
	Plugins PluginsConfig      `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	Relay   []RelayRouteConfig `json:"relay,omitempty" yaml:"relay,omitempty"`
}

// ServerConfig configures the listener, liveness, and the auth gate.
type ServerConfig struct {
	// Host is the listen address (default "127.0.0.1").
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	// Port is the listen port (default 8124).
	Port int `json:"port,omitempty" yaml:"port,omitempty"`
	// AuthRequired gates all non-auth messages behind system.auth.
	AuthRequired bool `json:"authRequired,omitempty" yaml:"authRequired,omitempty"`
	// AuthToken is the shared secret checked by system.auth. Required when
	// AuthRequired is true.
	AuthToken string `json:"authToken,omitempty" yaml:"authToken,omitempty"`
	// SessionTTL bounds the validity of minted session tokens (default 24h).
	SessionTTL Duration `json:"sessionTtl,omitempty" yaml:"sessionTtl,omitempty"`
	// MaxConnections caps live connections (default 100).
	MaxConnections int `json:"maxConnections,omitempty" yaml:"maxConnections,omitempty"`
	// PingInterval is the liveness sweep interval (default 30s).
	PingInterval Duration `json:"pingInterval,omitempty" yaml:"pingInterval,omitempty"`
	// IdleTimeout removes connections with no inbound activity for this
	// long; resolution is bounded by the sweep interval (default 2m).
	IdleTimeout Duration `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
}

// LoggingConfig configures the operational logger.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

// PluginsConfig configures plugin discovery.
type PluginsConfig struct {
	// Dir is the directory scanned for plugin manifests.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Load lists plugin names to load at startup, in order. Order matters:
	// it is the dispatch interception order.
	Load []string `json:"load,omitempty" yaml:"load,omitempty"`
	// Disabled lists plugins that stay loaded but do not participate in
	// dispatch. Managed at runtime through the plugin host.
	Disabled []string `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	// StatePath is the dot-path store file for runtime plugin state.
	StatePath string `json:"statePath,omitempty" yaml:"statePath,omitempty"`
}

// RelayRouteConfig declares an outbound HTTP relay target.
type RelayRouteConfig struct {
	// Name is the unique route name referenced by proxy.<name> envelopes.
	Name string `json:"name" yaml:"name"`
	// BaseURL is the upstream base URL. Required.
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`
	// Endpoints maps endpoint aliases to upstream paths.
	Endpoints map[string]string `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	// Headers are default headers applied to every forwarded request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Timeout bounds each forwarded request (default 30s).
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// BearerToken, when set, is attached as an Authorization header by the
	// route's auth callback.
	BearerToken string `json:"bearerToken,omitempty" yaml:"bearerToken,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8124,
			MaxConnections: 100,
			SessionTTL:     Duration(24 * time.Hour),
			PingInterval:   Duration(30 * time.Second),
			IdleTimeout:    Duration(2 * time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ApplyDefaults fills zero values with defaults. Load calls this; callers
// constructing a Config by hand should too.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = def.Server.MaxConnections
	}
	if c.Server.SessionTTL == 0 {
		c.Server.SessionTTL = def.Server.SessionTTL
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = def.Server.PingInterval
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.AuthRequired && c.Server.AuthToken == "" {
		return fmt.Errorf("%w: authRequired set without authToken", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Relay))
	for _, r := range c.Relay {
		if r.Name == "" {
			return fmt.Errorf("%w: relay route without name", ErrInvalidConfig)
		}
		if r.BaseURL == "" {
			return fmt.Errorf("%w: relay route %q without baseUrl", ErrInvalidConfig, r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate relay route %q", ErrInvalidConfig, r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}
