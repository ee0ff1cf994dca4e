// Package archive stores raw rendered pages. Archived pages let corrupted
// records be re-normalized later without re-fetching the source.
package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/mentionmarkets/rollcall-sync/internal/transcript"
)

// Noop discards every object. Used when archiving is disabled.
type Noop struct{}

// NewNoop returns a no-op archive.
func NewNoop() *Noop {
	return &Noop{}
}

// PutObject drops the data and reports an empty URI.
func (*Noop) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", nil
}

// Memory keeps objects in a map, for tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory returns an in-memory archive.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// PutObject stores a copy of data under path.
func (m *Memory) PutObject(_ context.Context, path, _ string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	m.mu.Lock()
	m.objects[path] = append([]byte(nil), data...)
	m.mu.Unlock()
	return "mem://" + path, nil
}

// Get returns a stored object.
func (m *Memory) Get(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	return data, ok
}

// Len reports how many objects are stored.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var _ transcript.BlobStore = (*Noop)(nil)
var _ transcript.BlobStore = (*Memory)(nil)
