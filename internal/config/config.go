// Package config locates, loads and validates the block configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Zopieux/i3blocks/internal/model"
)

//go:embed default.yaml
var defaultConfig []byte

// searchPaths is the config lookup order: XDG user dir, XDG system dirs,
// then the bare home and /etc fallbacks.
func searchPaths() []string {
	var paths []string

	xdgHome := os.Getenv("XDG_CONFIG_HOME")
	if xdgHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			xdgHome = filepath.Join(home, ".config")
		}
	}
	if xdgHome != "" {
		paths = append(paths, filepath.Join(xdgHome, "i3blocks", "config.yaml"))
	}

	xdgDirs := os.Getenv("XDG_CONFIG_DIRS")
	if xdgDirs == "" {
		xdgDirs = "/etc/xdg"
	}
	for _, dir := range strings.Split(xdgDirs, ":") {
		if dir == "" {
			continue
		}
		paths = append(paths, filepath.Join(dir, "i3blocks", "config.yaml"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".i3blocks.yaml"))
	}
	paths = append(paths, "/etc/i3blocks.yaml")

	return paths
}

// Locate returns the first existing config file in the search order, or the
// empty string when none exists.
func Locate() string {
	for _, p := range searchPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load reads, merges and validates the configuration file at path.
func Load(path string) (model.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return model.Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault parses the embedded fallback configuration, used when no
// config file exists anywhere in the search order.
func LoadDefault() (model.Config, error) {
	cfg, err := parse(defaultConfig)
	if err != nil {
		return model.Config{}, fmt.Errorf("embedded default config: %w", err)
	}
	return cfg, nil
}

func parse(data []byte) (model.Config, error) {
	var cfg model.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

// applyDefaults merges the global defaults section under every block.
func applyDefaults(cfg *model.Config) {
	for i := range cfg.Blocks {
		b := &cfg.Blocks[i]
		if b.Interval == model.IntervalUnset {
			b.Interval = cfg.Defaults.Interval
		}
		if b.Format == "" {
			b.Format = cfg.Defaults.Format
		}
		b.Properties = b.Properties.MergeDefaults(cfg.Defaults.Properties)
	}
}
