package approval

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory approval store for demo/development mode.
type MemoryStore struct {
	records map[string]*Record
	log     []*LogEntry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory approval store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Create(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.TenantID]; ok {
		return ErrRecordExists
	}
	cp := *rec
	m.records[rec.TenantID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, tenantID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[tenantID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.TenantID]; !ok {
		return ErrRecordNotFound
	}
	cp := *rec
	m.records[rec.TenantID] = &cp
	return nil
}

func (m *MemoryStore) AppendLog(ctx context.Context, entry *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.log = append(m.log, &cp)
	return nil
}

func (m *MemoryStore) ListLog(ctx context.Context, tenantID string, limit int) ([]*LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*LogEntry
	for i := len(m.log) - 1; i >= 0; i-- {
		if m.log[i].TenantID != tenantID {
			continue
		}
		cp := *m.log[i]
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Record
	for _, rec := range m.records {
		if rec.Status != status {
			continue
		}
		cp := *rec
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
