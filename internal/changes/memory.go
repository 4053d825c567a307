package changes

import (
	"context"
	"sync"
)

// MemoryStore is a process-owned HashStore. Create one at startup, share it
// with the indexer, and drop it at shutdown.
type MemoryStore struct {
	mu    sync.RWMutex
	repos map[string]map[string]Hash
}

// NewMemoryStore creates an empty in-memory hash store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{repos: make(map[string]map[string]Hash)}
}

// LoadHashes returns a copy of the hashes recorded for repo
func (m *MemoryStore) LoadHashes(ctx context.Context, repo string) (map[string]Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Hash, len(m.repos[repo]))
	for path, h := range m.repos[repo] {
		out[path] = h
	}
	return out, nil
}

func (m *MemoryStore) PutHash(ctx context.Context, repo, path string, hash Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, ok := m.repos[repo]
	if !ok {
		files = make(map[string]Hash)
		m.repos[repo] = files
	}
	files[path] = hash
	return nil
}

func (m *MemoryStore) DeleteHash(ctx context.Context, repo, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.repos[repo], path)
	return nil
}

func (m *MemoryStore) ResetHashes(ctx context.Context, repo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.repos, repo)
	return nil
}
