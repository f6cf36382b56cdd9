package wasm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/caffeineduck/goviz/vfs"
)

// Option configures a Module at creation time.
type Option func(*config)

type config struct {
	logger           *log.Logger
	root             *vfs.Root
	stdout           io.Writer
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = default (4GB)
}

func defaultConfig() config {
	return config{
		logger: log.New(io.Discard),
		stdout: io.Discard,
	}
}

// WithLogger sets the logger for engine events.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRoot sets the directory mounted as the guest's "/". The caller keeps
// ownership of root. By default a private temporary root is used.
func WithRoot(root *vfs.Root) Option {
	return func(c *config) {
		c.root = root
	}
}

// WithStdout captures the guest's standard output. It is discarded by
// default; standard error is always the diagnostics line channel.
func WithStdout(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.stdout = w
		}
	}
}

// WithDiskCache enables the persistent compilation cache for faster CLI
// startup. Optionally provide a custom directory; otherwise uses
// ~/.cache/goviz or XDG_CACHE_HOME/goviz.
//
// Examples:
//
//	wasm.New(ctx, bin, wasm.WithDiskCache())            // default dir
//	wasm.New(ctx, bin, wasm.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) Option {
	return func(c *config) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit sets the maximum memory available to the engine.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

const pageSize = 64 << 10

// ParseMemoryLimit converts a size such as "256mb" or "1gb" to a page
// count. An empty string means no limit.
func ParseMemoryLimit(s string) (uint32, error) {
	spec := strings.ToLower(strings.TrimSpace(s))
	if spec == "" {
		return 0, nil
	}
	s = spec

	unit := uint64(1)
	switch {
	case strings.HasSuffix(s, "gb"):
		unit, s = 1<<30, strings.TrimSuffix(s, "gb")
	case strings.HasSuffix(s, "mb"):
		unit, s = 1<<20, strings.TrimSuffix(s, "mb")
	case strings.HasSuffix(s, "kb"):
		unit, s = 1<<10, strings.TrimSuffix(s, "kb")
	}

	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q", spec)
	}

	pages := n * unit / pageSize
	if pages == 0 || pages > 65536 {
		return 0, fmt.Errorf("memory limit %q out of range (64kb to 4gb)", spec)
	}
	return uint32(pages), nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "goviz")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "goviz")
	}
	return filepath.Join(os.TempDir(), "goviz-cache")
}
