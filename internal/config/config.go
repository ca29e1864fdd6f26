// Package config loads the broker's TOML configuration file and parses
// the per-request lsp_servers/lsp_config TOML blobs the editor sends,
// including the initializationOptions/settings deep-merge that lets a
// per-request override replace only the keys it mentions.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ServerConfig is one entry of the lsp_servers table.
type ServerConfig struct {
	Command         string            `toml:"command"`
	Args            []string          `toml:"args"`
	Envs            map[string]string `toml:"envs"`
	Root            string            `toml:"root"`
	RootGlobs       []string          `toml:"root_globs"`
	OffsetEncoding  string            `toml:"offset_encoding"`
	Settings        map[string]any    `toml:"settings"`
	InitOptions     map[string]any    `toml:"initialization_options"`
}

// Global holds broker-level settings (environment/config).
type Global struct {
	LogPath     string `toml:"log_file_path"`
	LogLevel    string `toml:"log_level"`
	MaxLogFiles int    `toml:"max_log_files"`
	TimeoutSecs int    `toml:"timeout"`
}

// File is the top-level shape of the broker's TOML config file.
type File struct {
	Global       Global                  `toml:"server"`
	LanguageServers map[string]ServerConfig `toml:"language_server"`
}

// Load reads and parses a TOML config file from path. A missing or
// unparsable file is returned as an error; LoadWithFallback layers the
// fallback search on top.
func Load(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}
	return &f, nil
}

// LoadWithFallback tries primary, then each of fallbacks in order,
// returning the first that parses successfully.
func LoadWithFallback(primary string, fallbacks ...string) (*File, error) {
	if cfg, err := Load(primary); err == nil {
		return cfg, nil
	}
	for _, p := range fallbacks {
		if p == primary {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if cfg, err := Load(p); err == nil {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("no valid configuration found (tried %q and %d fallbacks)", primary, len(fallbacks))
}

// ParseTOMLFragment parses a free-form TOML string into a generic map, used
// for the lsp_servers/lsp_config blobs carried in the editor request
// prologue.
func ParseTOMLFragment(s string) (map[string]any, error) {
	var m map[string]any
	if s == "" {
		return map[string]any{}, nil
	}
	if _, err := toml.Decode(s, &m); err != nil {
		return nil, fmt.Errorf("parse toml fragment: %w", err)
	}
	return m, nil
}

// DeepMerge merges src into dst, recursing into nested maps and otherwise
// letting src win: a per-request override should only replace the keys
// it mentions, not the whole settings tree.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, v := range src {
		if existing, ok := dst[k]; ok {
			existingMap, existingIsMap := existing.(map[string]any)
			newMap, newIsMap := v.(map[string]any)
			if existingIsMap && newIsMap {
				dst[k] = DeepMerge(existingMap, newMap)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}
