package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/attractor-gallery/internal/apperr"
	"github.com/starford/attractor-gallery/internal/models"
)

// Memory is an in-memory Provider for tests and ephemeral runs.
// Records are enumerated in insertion order. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	order   []models.Locator
	records map[models.Locator]*models.Record
	// ListErr, when set, is returned by ListMetadata.
	ListErr error
}

// NewMemory creates a Memory provider holding recs.
func NewMemory(recs ...*models.Record) *Memory {
	m := &Memory{records: make(map[models.Locator]*models.Record)}
	for _, r := range recs {
		m.Put(r)
	}
	return m
}

// Put adds or replaces rec, keyed by its hex ID.
func (m *Memory) Put(rec *models.Record) models.Locator {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc := models.Locator(rec.ID.Hex())
	if _, ok := m.records[loc]; !ok {
		m.order = append(m.order, loc)
	}
	m.records[loc] = rec
	return loc
}

// Remove deletes the record with id, leaving earlier enumerations stale.
func (m *Memory) Remove(id models.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc := models.Locator(id.Hex())
	delete(m.records, loc)
	for i, l := range m.order {
		if l == loc {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// ListMetadata returns metadata copies in insertion order.
func (m *Memory) ListMetadata(_ context.Context) ([]models.Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListErr != nil {
		return nil, fmt.Errorf("storage: list memory: %w: %w", apperr.ErrStoreUnavailable, m.ListErr)
	}
	out := make([]models.Metadata, 0, len(m.order))
	for _, loc := range m.order {
		meta := m.records[loc].Metadata
		meta.Locator = loc
		out = append(out, meta)
	}
	return out, nil
}

// LoadFull returns a copy of the record behind loc.
func (m *Memory) LoadFull(_ context.Context, loc models.Locator) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[loc]
	if !ok {
		return nil, fmt.Errorf("storage: load %s: %w", loc, apperr.ErrNotFound)
	}
	cp := *rec
	cp.Locator = loc
	return &cp, nil
}
