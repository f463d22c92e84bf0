package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Broker  BrokerConfig  `toml:"broker"`
	Server  ServerConfig  `toml:"server"`
	Agent   AgentConfig   `toml:"agent"`
	Display DisplayConfig `toml:"display"`
	Export  ExportConfig  `toml:"export"`
	Log     LogConfig     `toml:"log"`
}

// StorageConfig selects the durable record store.
type StorageConfig struct {
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// BrokerConfig contains the flush policy of the synchronization broker.
type BrokerConfig struct {
	FlushInterval Duration `toml:"flush_interval"`
	RetryDelay    Duration `toml:"retry_delay"`
	MergePolicy   string   `toml:"merge_policy"`
}

// ServerConfig contains the broker's HTTP/websocket listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// AgentConfig contains collection agent settings.
type AgentConfig struct {
	Version          string   `toml:"version"`
	PollInterval     Duration `toml:"poll_interval"`
	LivenessInterval Duration `toml:"liveness_interval"`
	RetryDelay       Duration `toml:"retry_delay"`
	SubmitRate       float64  `toml:"submit_rate"`
}

// DisplayConfig contains display client settings. An empty Version follows the [agent] namespace.
type DisplayConfig struct {
	Version      string   `toml:"version"`
	PollInterval Duration `toml:"poll_interval"`
}

// ExportConfig contains file export settings.
type ExportConfig struct {
	Dir      string `toml:"dir"`
	Timezone string `toml:"timezone"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a [time.Duration] decoded from strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, text)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Address returns the host:port the broker listens on.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WebsocketURL returns the URL clients dial to reach the broker.
func (c ServerConfig) WebsocketURL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s:%d/ws", host, c.Port)
}

// Location returns the export time zone, falling back to the local zone.
func (c ExportConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DisplayVersion is the namespace a display opens with.
func (c *Config) DisplayVersion() string {
	if c.Display.Version != "" {
		return c.Display.Version
	}
	return c.Agent.Version
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("%w: storage.dsn is required", ErrInvalidConfig)
	}
	switch c.Broker.MergePolicy {
	case "", "union", "replace":
	default:
		return fmt.Errorf("%w: broker.merge_policy must be union or replace, got %q", ErrInvalidConfig, c.Broker.MergePolicy)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Agent.SubmitRate < 0 {
		return fmt.Errorf("%w: agent.submit_rate must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
