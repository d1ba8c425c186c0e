package guard

import (
	"context"
	"sync"
)

// MemoryLogStore is an in-memory LogStore for tests and development.
type MemoryLogStore struct {
	mu      sync.Mutex
	entries map[string][]*LogEntry
}

// NewMemoryLogStore creates an empty in-memory guard log.
func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{entries: make(map[string][]*LogEntry)}
}

func (m *MemoryLogStore) Append(ctx context.Context, entry *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	if entry.Metadata != nil {
		cp.Metadata = make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			cp.Metadata[k] = v
		}
	}
	m.entries[entry.TenantID] = append(m.entries[entry.TenantID], &cp)
	return nil
}

func (m *MemoryLogStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[tenantID]
	result := make([]*LogEntry, 0, limit)
	// Newest first.
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *entries[i]
		result = append(result, &cp)
	}
	return result, nil
}
