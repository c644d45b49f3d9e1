// Package config loads the optional gofortune config file. Everything
// has a working default so the binaries run with no file present;
// environment variables override the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLengthThreshold is the -n default: the long/short boundary in
// bytes. fortune-mod uses 160 and the parity oracle expects it.
const DefaultLengthThreshold = 160

// Config holds ambient defaults for the fortune binaries.
type Config struct {
	// SearchPath lists the directories probed when no sources are
	// named on the command line.
	SearchPath []string `yaml:"search_path"`

	// LengthThreshold is the default long/short boundary in bytes.
	LengthThreshold int `yaml:"length_threshold"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls zap construction.
type LoggingConfig struct {
	// Verbose lifts the log level to debug.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		SearchPath: []string{
			"/usr/share/fortune",
			"/usr/local/share/fortune",
			"/usr/share/games/fortunes",
			"/usr/local/share/games/fortunes",
		},
		LengthThreshold: DefaultLengthThreshold,
	}
}

// DefaultPath returns the per-user config location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gofortune", "config.yaml")
}

// Load reads the config at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults only
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if cfg.LengthThreshold <= 0 {
		cfg.LengthThreshold = DefaultLengthThreshold
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if raw := os.Getenv("FORTUNE_PATH"); raw != "" {
		var dirs []string
		for _, entry := range strings.Split(raw, ":") {
			if entry != "" {
				dirs = append(dirs, entry)
			}
		}
		if len(dirs) > 0 {
			c.SearchPath = dirs
		}
	}
	if raw := os.Getenv("FORTUNE_LENGTH_THRESHOLD"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			c.LengthThreshold = v
		}
	}
}
