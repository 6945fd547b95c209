// SPDX-License-Identifier: EPL-2.0

// Package store resolves resource names to byte streams.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when no stream exists for a name.
var ErrNotFound = errors.New("resource not found")

// Store hands out streams by name. Callers close the returned stream.
type Store interface {
	GetStream(name string) (io.ReadCloser, error)
}

// FileStore reads resources below a root directory. A name without a
// matching file is retried with each extension appended.
type FileStore struct {
	root       string
	extensions []string
}

// NewFileStore creates a store rooted at root.
func NewFileStore(root string, extensions ...string) *FileStore {
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		exts = append(exts, strings.TrimPrefix(e, "."))
	}

	return &FileStore{root: root, extensions: exts}
}

// GetStream opens name, then name.ext for every configured extension.
func (s *FileStore) GetStream(name string) (io.ReadCloser, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	base := filepath.Join(s.root, clean)

	candidates := []string{base}
	for _, ext := range s.extensions {
		candidates = append(candidates, base+"."+ext)
	}

	for _, path := range candidates {
		f, err := os.Open(path)
		if err == nil {
			if st, statErr := f.Stat(); statErr == nil && st.IsDir() {
				_ = f.Close()
				continue
			}

			return f, nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}

	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// MemoryStore serves resources held in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

// Put stores data under name, replacing any previous value.
func (s *MemoryStore) Put(name string, data []byte) {
	s.mu.Lock()
	s.items[name] = data
	s.mu.Unlock()
}

// GetStream returns a reader over a copy-free view of the stored bytes.
func (s *MemoryStore) GetStream(name string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.items[name]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}
