package nativetest

import (
	"errors"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemFS is an in-memory native.FileSystem.
type MemFS struct {
	files map[string][]byte
	dirs  map[string]bool
	mu    sync.Mutex
}

// NewMemFS returns an empty filesystem containing only "/".
func NewMemFS() *MemFS {
	return &MemFS{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true},
	}
}

func clean(p string) string {
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

func (m *MemFS) Join(elem ...string) string { return path.Join(elem...) }

func (m *MemFS) Dir(p string) string { return path.Dir(p) }

func (m *MemFS) MkdirAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	for {
		if _, ok := m.files[p]; ok {
			return errors.New("not a directory: " + p)
		}
		m.dirs[p] = true
		if p == "/" {
			return nil
		}
		p = path.Dir(p)
	}
}

func (m *MemFS) Write(p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	if !m.dirs[path.Dir(p)] {
		return errors.New("no such directory: " + path.Dir(p))
	}
	if m.dirs[p] {
		return errors.New("is a directory: " + p)
	}
	m.files[p] = append([]byte(nil), data...)
	return nil
}

func (m *MemFS) Exists(p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	_, ok := m.files[p]
	return ok || m.dirs[p], nil
}

func (m *MemFS) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	if _, ok := m.files[p]; !ok {
		return errors.New("file not found: " + p)
	}
	delete(m.files, p)
	return nil
}

// ReadFile returns the contents of a file.
func (m *MemFS) ReadFile(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[clean(p)]
	return data, ok
}

// Files lists every file path in sorted order.
func (m *MemFS) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
