package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"clawpulse/internal/commgraph"
	"clawpulse/internal/domain"
)

type Config struct {
	Server ServerConfig   `toml:"server" json:"server"`
	Graph  GraphConfig    `toml:"graph" json:"graph"`
	Feed   FeedConfig     `toml:"feed" json:"feed"`
	Notify NotifyConfig   `toml:"notify" json:"notify"`
	Agents []domain.Agent `toml:"agents" json:"agents,omitempty"`
	Raw    map[string]any `toml:"-" json:"-"`
	Path   string         `toml:"-" json:"path,omitempty"`
}

type ServerConfig struct {
	Addr              string `toml:"addr" json:"addr"`
	DBPath            string `toml:"db_path" json:"db_path"`
	MessageLimit      int    `toml:"message_limit" json:"message_limit"`
	RefreshIntervalMS int    `toml:"refresh_interval_ms" json:"refresh_interval_ms"`
}

type GraphConfig struct {
	Width  float64          `toml:"width" json:"width"`
	Height float64          `toml:"height" json:"height"`
	Layout commgraph.Params `toml:"layout" json:"layout"`
}

type FeedConfig struct {
	Buffer int `toml:"buffer" json:"buffer"`
}

type NotifyConfig struct {
	Capacity       int `toml:"capacity" json:"capacity"`
	DedupeWindowMS int `toml:"dedupe_window_ms" json:"dedupe_window_ms"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              "127.0.0.1:8787",
			DBPath:            "./clawpulse.db",
			MessageLimit:      200,
			RefreshIntervalMS: 5000,
		},
		Graph: GraphConfig{
			Width:  800,
			Height: 600,
			Layout: commgraph.DefaultParams(),
		},
		Feed:   FeedConfig{Buffer: 64},
		Notify: NotifyConfig{Capacity: 50, DedupeWindowMS: 10000},
	}
}

// Load reads the TOML file at path over the defaults. An empty path means
// the default location, which may be absent.
func Load(path string) (Config, error) {
	optional := path == ""
	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	resolved, err := expandHome(resolved)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	var raw map[string]any
	if _, err := toml.Decode(string(bytes), &raw); err != nil {
		return Config{}, fmt.Errorf("decode raw config: %w", err)
	}
	cfg.Raw = raw
	cfg.Path = resolved
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = def.Server.Addr
	}
	if strings.TrimSpace(c.Server.DBPath) == "" {
		c.Server.DBPath = def.Server.DBPath
	}
	if c.Server.MessageLimit <= 0 {
		c.Server.MessageLimit = def.Server.MessageLimit
	}
	if c.Server.RefreshIntervalMS <= 0 {
		c.Server.RefreshIntervalMS = def.Server.RefreshIntervalMS
	}
	if c.Graph.Width <= 0 {
		c.Graph.Width = def.Graph.Width
	}
	if c.Graph.Height <= 0 {
		c.Graph.Height = def.Graph.Height
	}
	if c.Feed.Buffer <= 0 {
		c.Feed.Buffer = def.Feed.Buffer
	}
	if c.Notify.Capacity <= 0 {
		c.Notify.Capacity = def.Notify.Capacity
	}
	if c.Notify.DedupeWindowMS <= 0 {
		c.Notify.DedupeWindowMS = def.Notify.DedupeWindowMS
	}
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(path, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		path = filepath.Join(home, trimmed)
	}
	return filepath.Clean(path), nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clawpulse/config.toml"
	}
	return filepath.Join(home, ".clawpulse", "config.toml")
}
