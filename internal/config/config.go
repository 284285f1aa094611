// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"starcam-link/internal/wire"
)

// Camera describes the remote star camera and how to reach it.
type Camera struct {
	Name            string        `yaml:"name"`
	Address         string        `yaml:"address"`
	Port            int           `yaml:"port"`
	ProtocolVersion int           `yaml:"protocol_version"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	// ReadTimeout bounds each socket read. Zero blocks until data or close.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Backup locates the CSV backup log.
type Backup struct {
	Path string `yaml:"path"`
}

// Admin configures the HTTP admin server. An empty Listen disables it.
type Admin struct {
	Listen string `yaml:"listen"`
}

// Log selects the slog level and handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Export configures the optional JSONL logs.
type Export struct {
	TelemetryPath string        `yaml:"telemetry_path"`
	FramesPath    string        `yaml:"frames_path"`
	EventsPath    string        `yaml:"events_path"`
	StatePath     string        `yaml:"state_path"`
	StateInterval time.Duration `yaml:"state_interval"`
	// StdoutFormat is "json" for JSON lines or "text" for colored lines.
	StdoutFormat string `yaml:"stdout_format"`
}

// Greptime configures the GreptimeDB sink. An empty Endpoint disables it.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
}

// Config is the root configuration.
type Config struct {
	Camera   Camera   `yaml:"camera"`
	Backup   Backup   `yaml:"backup"`
	Admin    Admin    `yaml:"admin"`
	Log      Log      `yaml:"log"`
	Export   Export   `yaml:"export"`
	Greptime Greptime `yaml:"greptime"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Camera.Name == "" {
		c.Camera.Name = "starcam"
	}
	if c.Camera.Address == "" {
		c.Camera.Address = "127.0.0.1"
	}
	if c.Camera.Port == 0 {
		c.Camera.Port = wire.DefaultPort
	}
	if c.Camera.ProtocolVersion == 0 {
		c.Camera.ProtocolVersion = 2
	}
	if c.Camera.ConnectTimeout == 0 {
		c.Camera.ConnectTimeout = 5 * time.Second
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data.txt"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Export.StateInterval == 0 {
		c.Export.StateInterval = time.Second
	}
	if c.Export.StdoutFormat == "" {
		c.Export.StdoutFormat = "json"
	}
	if c.Greptime.Database == "" {
		c.Greptime.Database = "public"
	}
}

// applyEnv overrides file values with STARCAM_* and GREPTIMEDB_* variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("STARCAM_ADDRESS"); v != "" {
		c.Camera.Address = v
	}
	if v := os.Getenv("STARCAM_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid STARCAM_PORT %q", v)
		}
		c.Camera.Port = port
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_DATABASE"); v != "" {
		c.Greptime.Database = v
	}
	return nil
}

// Protocol returns the wire protocol selected by the camera section.
func (c *Config) Protocol() (*wire.Protocol, error) {
	return wire.LookupProtocol(c.Camera.ProtocolVersion)
}

// Load reads a YAML config, validates it against the CUE schema, applies defaults
// and then environment overrides. An empty path yields the defaults.
func Load(configPath string) (*Config, error) {
	var cfg Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		// Validate with CUE first
		if err := ValidateWithCue(configPath, data); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
