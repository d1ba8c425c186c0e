package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRuleNotFound is returned when deleting an unknown rule.
var ErrRuleNotFound = errors.New("ratelimit: rule not found")

// MemoryRuleStore is an in-memory rule store. Also used as the live rule
// set behind the YAML file loader.
type MemoryRuleStore struct {
	rules map[string]*Rule
	mu    sync.RWMutex
}

// NewMemoryRuleStore creates an empty in-memory rule store.
func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string]*Rule)}
}

func (m *MemoryRuleStore) List(ctx context.Context) ([]*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Rule, 0, len(m.rules))
	for _, r := range m.rules {
		cp := *r
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryRuleStore) Put(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rule
	m.rules[rule.ID] = &cp
	return nil
}

func (m *MemoryRuleStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

// Replace swaps the entire rule set atomically (used by the file loader).
func (m *MemoryRuleStore) Replace(rules []*Rule) {
	next := make(map[string]*Rule, len(rules))
	for _, r := range rules {
		cp := *r
		next[r.ID] = &cp
	}
	m.mu.Lock()
	m.rules = next
	m.mu.Unlock()
}

// MemoryLogStore is an in-memory decision log for demo/development mode.
type MemoryLogStore struct {
	entries []*LogEntry
	mu      sync.RWMutex
}

// NewMemoryLogStore creates a new in-memory decision log.
func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{}
}

func (m *MemoryLogStore) Append(ctx context.Context, entry *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MemoryLogStore) CountByRule(ctx context.Context, since time.Time) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range m.entries {
		if e.CreatedAt.Before(since) {
			continue
		}
		counts[e.RuleID]++
	}
	return counts, nil
}
