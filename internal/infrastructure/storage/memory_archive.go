package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/rentals/backend/internal/domain/billing"
)

// MemoryArchiver keeps uploads in process memory. It backs development
// setups without object storage.
type MemoryArchiver struct {
	mu      sync.RWMutex
	objects map[string][]byte
	seq     int
}

// NewMemoryArchiver creates an empty MemoryArchiver
func NewMemoryArchiver() *MemoryArchiver {
	return &MemoryArchiver{objects: make(map[string][]byte)}
}

// Archive stores a copy of data
func (m *MemoryArchiver) Archive(_ context.Context, kind billing.UtilityKind, filename string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	key := fmt.Sprintf("memory/%s/%d-%s", kind, m.seq, filename)
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

// Get returns a stored object
func (m *MemoryArchiver) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}
