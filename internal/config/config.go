package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"voidmod/internal/games"
)

// Config captures the user's voidmod settings.
type Config struct {
	Version    int                   `yaml:"version"`
	ActiveGame string                `yaml:"active_game"`
	Activation string                `yaml:"activation"`
	Downloads  DownloadsConfig       `yaml:"downloads"`
	Games      map[string]GameConfig `yaml:"games,omitempty"`
}

// DownloadsConfig tunes the download queue.
type DownloadsConfig struct {
	// Dir overrides the download directory; empty means <data>/downloads.
	Dir        string `yaml:"dir,omitempty"`
	QueueSize  int    `yaml:"queue_size"`
	Workers    int    `yaml:"workers"`
	UserAgent  string `yaml:"user_agent"`
	TimeoutSec int    `yaml:"timeout_s"`
}

// GameConfig holds per-game overrides keyed by game id.
type GameConfig struct {
	InstallDir      string `yaml:"install_dir,omitempty"`
	ScriptExtension string `yaml:"script_extension,omitempty"`
	// ScriptThreshold is a pointer so an explicit 0 differs from unset.
	ScriptThreshold *int   `yaml:"script_threshold,omitempty"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version:    1,
		ActiveGame: games.Payday2ID,
		Activation: "auto",
		Downloads: DownloadsConfig{
			QueueSize:  100,
			Workers:    1,
			UserAgent:  "voidmod/1.0",
			TimeoutSec: 1800,
		},
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Save writes cfg to path, creating the directory when needed.
func Save(path string, cfg Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyDefaults fills fields the YAML left empty.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.ActiveGame == "" {
		c.ActiveGame = defaults.ActiveGame
	}
	if c.Activation == "" {
		c.Activation = defaults.Activation
	}
	if c.Downloads.QueueSize == 0 {
		c.Downloads.QueueSize = defaults.Downloads.QueueSize
	}
	if c.Downloads.Workers == 0 {
		c.Downloads.Workers = defaults.Downloads.Workers
	}
	if c.Downloads.UserAgent == "" {
		c.Downloads.UserAgent = defaults.Downloads.UserAgent
	}
	if c.Downloads.TimeoutSec == 0 {
		c.Downloads.TimeoutSec = defaults.Downloads.TimeoutSec
	}
}

// Timeout returns the per-download HTTP timeout.
func (d DownloadsConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSec) * time.Second
}

// GameOptions converts the per-game overrides for the games registry.
func (c Config) GameOptions() map[string]games.Options {
	out := make(map[string]games.Options, len(c.Games))
	for id, g := range c.Games {
		out[id] = games.Options{
			InstallDir:      g.InstallDir,
			ScriptExtension: g.ScriptExtension,
			ScriptThreshold: g.ScriptThreshold,
		}
	}
	return out
}

// SetGameInstallDir records a fixed install directory for id.
func (c *Config) SetGameInstallDir(id, dir string) {
	if c.Games == nil {
		c.Games = map[string]GameConfig{}
	}
	g := c.Games[id]
	g.InstallDir = dir
	c.Games[id] = g
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}
