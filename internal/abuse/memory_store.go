package abuse

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory score store for demo/development mode.
type MemoryStore struct {
	scores map[string]*Score
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory score store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scores: make(map[string]*Score)}
}

func (m *MemoryStore) Get(ctx context.Context, tenantID string) (*Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scores[tenantID]
	if !ok {
		return nil, ErrScoreNotFound
	}
	cp := *s
	cp.Metadata = copyMeta(s.Metadata)
	if s.SuspendedAt != nil {
		t := *s.SuspendedAt
		cp.SuspendedAt = &t
	}
	if s.LastEventAt != nil {
		t := *s.LastEventAt
		cp.LastEventAt = &t
	}
	return &cp, nil
}

func (m *MemoryStore) Upsert(ctx context.Context, score *Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *score
	cp.Metadata = copyMeta(score.Metadata)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.scores[score.TenantID] = &cp
	return nil
}

func (m *MemoryStore) ListSuspended(ctx context.Context, limit int) ([]*Score, error) {
	return m.list(func(s *Score) bool { return s.IsSuspended }, limit)
}

func (m *MemoryStore) ListActive(ctx context.Context, limit int) ([]*Score, error) {
	return m.list(func(s *Score) bool { return !s.IsSuspended && s.CurrentScore > 0 }, limit)
}

func (m *MemoryStore) list(match func(*Score) bool, limit int) ([]*Score, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Score
	for _, s := range m.scores {
		if !match(s) {
			continue
		}
		cp := *s
		cp.Metadata = copyMeta(s.Metadata)
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func copyMeta(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// EventMemoryStore is an in-memory append-only event ledger.
type EventMemoryStore struct {
	events []*Event
	mu     sync.RWMutex
}

// NewEventMemoryStore creates a new in-memory event ledger.
func NewEventMemoryStore() *EventMemoryStore {
	return &EventMemoryStore{}
}

func (m *EventMemoryStore) Append(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.events = append(m.events, &cp)
	return nil
}

func (m *EventMemoryStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Event
	// Newest first.
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].TenantID != tenantID {
			continue
		}
		cp := *m.events[i]
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
