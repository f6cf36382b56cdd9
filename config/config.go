// Package config loads goviz settings from a TOML file.
//
// Settings come from three layers, later ones winning: [Default], the
// file named by --config (or the first goviz.toml found by [Find]) and
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Find.
const FileName = "goviz.toml"

// Backends.
const (
	BackendGraphviz = "graphviz"
	BackendWasm     = "wasm"
)

// Cache kinds.
const (
	CacheNone  = "none"
	CacheFile  = "file"
	CacheRedis = "redis"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Backend  string `toml:"backend"`
	LogLevel string `toml:"log_level"`

	Wasm   Wasm   `toml:"wasm"`
	Render Render `toml:"render"`
	Server Server `toml:"server"`
	Cache  Cache  `toml:"cache"`
}

type Wasm struct {
	Module      string `toml:"module"`
	CacheDir    string `toml:"cache_dir"`
	MemoryLimit string `toml:"memory_limit"`
}

type Render struct {
	Engine string `toml:"engine"`
	Format string `toml:"format"`
}

type Server struct {
	Addr    string        `toml:"addr"`
	Timeout time.Duration `toml:"timeout"`
}

type Cache struct {
	Kind     string        `toml:"kind"`
	Dir      string        `toml:"dir"`
	TTL      time.Duration `toml:"ttl"`
	RedisURL string        `toml:"redis_url"`
	Prefix   string        `toml:"prefix"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:  BackendGraphviz,
		LogLevel: "info",
		Wasm: Wasm{
			Module:      "viz.wasm",
			MemoryLimit: "256mb",
		},
		Render: Render{
			Engine: "dot",
			Format: "svg",
		},
		Server: Server{
			Addr:    ":8080",
			Timeout: 30 * time.Second,
		},
		Cache: Cache{
			Kind:     CacheFile,
			TTL:      24 * time.Hour,
			RedisURL: "redis://localhost:6379/0",
			Prefix:   "goviz:",
		},
	}
}

// Load overlays the file at path onto Default. Unknown keys are an error.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.decode(string(data)); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data string) error {
	md, err := toml.Decode(data, c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	return c.Validate()
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendGraphviz, BackendWasm:
	default:
		return fmt.Errorf("%w: backend %q (expected graphviz or wasm)", ErrInvalid, c.Backend)
	}
	switch c.Cache.Kind {
	case CacheNone, CacheFile, CacheRedis:
	default:
		return fmt.Errorf("%w: cache kind %q (expected none, file or redis)", ErrInvalid, c.Cache.Kind)
	}
	if c.Server.Timeout < 0 || c.Cache.TTL < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalid)
	}
	return nil
}

// Find returns the first existing config file: ./goviz.toml, then
// $XDG_CONFIG_HOME/goviz/goviz.toml (or ~/.config/goviz/goviz.toml). It
// returns "" when there is none.
func Find() string {
	candidates := []string{FileName}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "goviz", FileName))
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// CacheDir returns the file cache directory, defaulting to
// $XDG_CACHE_HOME/goviz/results.
func (c Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "goviz", "results")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "goviz", "results")
	}
	return filepath.Join(os.TempDir(), "goviz-cache", "results")
}
