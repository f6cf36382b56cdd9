// Package vfs provides the engine-side filesystem used for placeholder
// images: a host directory presented to the engine as "/".
//
// Every path is resolved against the root and rejected if it would
// escape it. The same directory is handed to the engine either as an
// fs.FS or as a wazero directory mount, so files written here are the
// files the engine opens during layout.
package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrPathEscape    = errors.New("permission denied: path escape attempt")
	ErrPathTooLong   = errors.New("path too long")
	ErrWriteTooLarge = errors.New("content too large")
	ErrClosed        = errors.New("filesystem closed")
)

// Option configures a Root.
type Option func(*config)

type config struct {
	maxWriteSize  int64
	maxPathLength int
}

func defaultConfig() config {
	return config{
		maxWriteSize:  1 << 20,
		maxPathLength: 4096,
	}
}

// WithMaxWriteSize limits the size of a single write.
func WithMaxWriteSize(size int64) Option {
	return func(c *config) {
		c.maxWriteSize = size
	}
}

// WithMaxPathLength limits the length of engine paths.
func WithMaxPathLength(length int) Option {
	return func(c *config) {
		c.maxPathLength = length
	}
}

// Root is a host directory exposed to the engine as "/".
type Root struct {
	dir    string
	temp   bool
	cfg    config
	closed bool
	mu     sync.RWMutex
}

// New returns a Root backed by dir, creating it if needed.
func New(dir string, opts ...Option) (*Root, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}
	return &Root{dir: abs, cfg: cfg}, nil
}

// NewTemp returns a Root in a fresh temporary directory that is removed on
// Close.
func NewTemp(opts ...Option) (*Root, error) {
	dir, err := os.MkdirTemp("", "goviz-fs-")
	if err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	r, err := New(dir, opts...)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	r.temp = true
	return r, nil
}

// HostDir returns the absolute host directory behind the root.
func (r *Root) HostDir() string { return r.dir }

// FS returns the root as an fs.FS, for engines that open files through one.
func (r *Root) FS() fs.FS { return os.DirFS(r.dir) }

// resolve maps an engine path to a host path.
func (r *Root) resolve(p string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return "", ErrClosed
	}
	if r.cfg.maxPathLength > 0 && len(p) > r.cfg.maxPathLength {
		return "", ErrPathTooLong
	}

	// Engine paths are slash separated and absolute.
	vp := path.Clean("/" + strings.TrimPrefix(p, "/"))
	hostPath := filepath.Join(r.dir, filepath.FromSlash(vp))

	if hostPath != r.dir && !strings.HasPrefix(hostPath, r.dir+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return hostPath, nil
}

func (r *Root) Join(elem ...string) string { return path.Join(elem...) }

func (r *Root) Dir(p string) string { return path.Dir(p) }

// MkdirAll creates p and any missing parents.
func (r *Root) MkdirAll(p string) error {
	hostPath, err := r.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(hostPath, 0o755); err != nil {
		return errors.New("mkdir error: " + err.Error())
	}
	return nil
}

// Write replaces the contents of p. The parent directory must exist.
func (r *Root) Write(p string, data []byte) error {
	if r.cfg.maxWriteSize > 0 && int64(len(data)) > r.cfg.maxWriteSize {
		return ErrWriteTooLarge
	}
	hostPath, err := r.resolve(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(hostPath, data, 0o644); err != nil {
		return errors.New("write error: " + err.Error())
	}
	return nil
}

// Exists reports whether p exists. Paths outside the root do not exist.
func (r *Root) Exists(p string) (bool, error) {
	hostPath, err := r.resolve(p)
	if err != nil {
		if errors.Is(err, ErrPathEscape) {
			return false, nil
		}
		return false, err
	}

	_, err = os.Stat(hostPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Remove deletes a file or empty directory.
func (r *Root) Remove(p string) error {
	hostPath, err := r.resolve(p)
	if err != nil {
		return err
	}
	if hostPath == r.dir {
		return errors.New("permission denied: cannot remove root")
	}
	if err := os.Remove(hostPath); err != nil {
		if os.IsNotExist(err) {
			return errors.New("file not found: " + p)
		}
		return errors.New("remove error: " + err.Error())
	}
	return nil
}

// Close removes a temporary root. Roots created with New are left alone.
func (r *Root) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.temp {
		return os.RemoveAll(r.dir)
	}
	return nil
}
