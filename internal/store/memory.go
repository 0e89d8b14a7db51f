package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"actionflow/internal/action"
)

const memoryAuditCap = 1000

// Memory is the in-process map store. All methods are safe for concurrent
// use; UpdateStatusIf performs the read-check-write under the same lock, so
// the compare-and-set is genuinely atomic.
type Memory struct {
	mu    sync.RWMutex
	items map[string]action.Item

	amu   sync.Mutex
	audit []AuditEntry
}

func NewMemory() *Memory {
	return &Memory{items: map[string]action.Item{}}
}

func (m *Memory) Find(ctx context.Context, id string) (action.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return action.Item{}, ErrNotFound
	}
	return it.Clone(), nil
}

func (m *Memory) List(ctx context.Context, f Filter) ([]action.Item, error) {
	m.mu.RLock()
	out := make([]action.Item, 0, len(m.items))
	for _, it := range m.items {
		if f.matches(it) {
			out = append(out, it.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *Memory) Create(ctx context.Context, it action.Item) error {
	now := time.Now()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	if it.UpdatedAt.IsZero() {
		it.UpdatedAt = now
	}
	m.mu.Lock()
	m.items[it.ID] = it.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) Update(ctx context.Context, id string, u Update) (action.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return action.Item{}, ErrNotFound
	}
	u.apply(&it, time.Now())
	m.items[id] = it
	return it.Clone(), nil
}

func (m *Memory) UpdateStatusIf(ctx context.Context, id string, from, to action.Status) (action.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return action.Item{}, ErrNotFound
	}
	if it.Status != from {
		return it.Clone(), ErrConflict
	}
	it.Status = to
	it.UpdatedAt = time.Now()
	m.items[id] = it
	return it.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return false, nil
	}
	delete(m.items, id)
	return true, nil
}

func (m *Memory) DueSoon(ctx context.Context, lookahead time.Duration) ([]action.Item, error) {
	until := time.Now().Add(lookahead)

	m.mu.RLock()
	out := make([]action.Item, 0)
	for _, it := range m.items {
		if it.Status == action.StatusPending && !it.DueDate.After(until) {
			out = append(out, it.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		ByStatus:   map[action.Status]int{},
		ByType:     map[action.Type]int{},
		ByPriority: map[action.Priority]int{},
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		st.Total++
		st.ByStatus[it.Status]++
		st.ByType[it.Type]++
		st.ByPriority[it.Priority]++
	}
	return st, nil
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.amu.Lock()
	m.audit = append(m.audit, e)
	if len(m.audit) > memoryAuditCap {
		m.audit = m.audit[len(m.audit)-memoryAuditCap:]
	}
	m.amu.Unlock()
	return nil
}

// AuditEntries returns a copy of the retained audit trail (newest last).
func (m *Memory) AuditEntries() []AuditEntry {
	m.amu.Lock()
	defer m.amu.Unlock()
	out := make([]AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

func (m *Memory) Close() error { return nil }
