package subscription

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*Snapshot)}
}

func (m *MemoryStore) Get(ctx context.Context, tenantID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[tenantID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *snap
	return &cp, nil
}

func (m *MemoryStore) Put(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snap
	m.snaps[snap.TenantID] = &cp
	return nil
}

// MemoryUsageStore is an in-memory UsageStore.
type MemoryUsageStore struct {
	mu    sync.Mutex
	usage map[string]*Usage
}

// NewMemoryUsageStore creates an empty in-memory usage store.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{usage: make(map[string]*Usage)}
}

func (m *MemoryUsageStore) Get(ctx context.Context, tenantID string) (*Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.usage[tenantID]
	if !ok {
		return nil, ErrUsageNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryUsageStore) AddMessages(ctx context.Context, tenantID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(tenantID).MessagesSent += n
	return nil
}

func (m *MemoryUsageStore) AddCampaigns(ctx context.Context, tenantID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(tenantID).CampaignsRun += n
	return nil
}

func (m *MemoryUsageStore) AddNumbers(ctx context.Context, tenantID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.get(tenantID).NumbersAttached += n
	return nil
}

func (m *MemoryUsageStore) Reset(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[tenantID] = &Usage{TenantID: tenantID}
	return nil
}

func (m *MemoryUsageStore) get(tenantID string) *Usage {
	u, ok := m.usage[tenantID]
	if !ok {
		u = &Usage{TenantID: tenantID}
		m.usage[tenantID] = u
	}
	return u
}
