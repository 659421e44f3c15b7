// Package memory implements an in-memory record store, used as a test
// double and as the backing store for an ephemeral peer server.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/store"
)

// Memory is the in-memory implementation of store.Store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*punch.Punch
	order   []string
}

var _ store.Store = (*Memory)(nil)

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{records: make(map[string]*punch.Punch)}
}

// Save implements store.Store.
func (m *Memory) Save(p *punch.Punch) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid punch: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	if _, seen := m.records[cp.ID]; !seen {
		m.order = append(m.order, cp.ID)
	}
	m.records[cp.ID] = &cp
	return nil
}

// Current implements store.Store.
func (m *Memory) Current(project string) (*punch.Punch, error) {
	return m.Find(func(p *punch.Punch) bool {
		return p.IsCurrent() && (project == "" || p.Project == project)
	})
}

// Latest implements store.Store.
func (m *Memory) Latest(project string) (*punch.Punch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *punch.Punch
	for _, id := range m.order {
		p := m.records[id]
		if p.IsTombstone() || (project != "" && p.Project != project) {
			continue
		}
		if latest == nil || p.In.After(latest.In) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// Filter implements store.Store.
func (m *Memory) Filter(pred store.Predicate) ([]*punch.Punch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*punch.Punch
	for _, id := range m.order {
		p := m.records[id]
		if p.IsTombstone() || !pred(p) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// Find implements store.Store.
func (m *Memory) Find(pred store.Predicate) (*punch.Punch, error) {
	matches, err := m.Filter(pred)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	return matches[0], nil
}

// Delete implements store.Store.
func (m *Memory) Delete(p *punch.Punch) error {
	cp := *p
	cp.MarkDeleted(time.Now())
	return m.Save(&cp)
}

// All implements store.Store.
func (m *Memory) All() ([]*punch.Punch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*punch.Punch, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.records[id]
		out = append(out, &cp)
	}
	return out, nil
}

// CleanUp implements store.Store. Nothing to flush.
func (m *Memory) CleanUp() error {
	return nil
}
