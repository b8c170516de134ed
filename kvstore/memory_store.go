package kvstore

import (
	"context"
	"net/url"
	"sort"
	"sync"

	"go.gazette.dev/prefs/async"
)

// MemoryStore is an in-memory implementation of Store. Its mutations
// resolve immediately. MemoryStore is primarily useful for testing.
type MemoryStore struct {
	URL     *url.URL
	Content map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryStore returns an empty MemoryStore. |ep| may be nil.
func NewMemoryStore(ep *url.URL) *MemoryStore {
	return &MemoryStore{
		URL:     ep,
		Content: make(map[string][]byte),
	}
}

// NewMemory is a Constructor of MemoryStores.
func NewMemory(ep *url.URL) (Store, error) { return NewMemoryStore(ep), nil }

func (m *MemoryStore) Provider() string { return "memory" }

func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var value, ok = m.Content[key]
	return value, ok, nil
}

func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys = make([]string, 0, len(m.Content))
	for key := range m.Content {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) async.OpFuture {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Content[key] = append([]byte(nil), value...)
	return async.FinishedOperation(nil)
}

func (m *MemoryStore) Remove(_ context.Context, key string) async.OpFuture {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.Content, key)
	return async.FinishedOperation(nil)
}

func (m *MemoryStore) Close() error { return nil }
