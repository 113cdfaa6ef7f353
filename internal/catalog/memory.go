// Package catalog holds an in-memory catalog reader for tests and offline demos.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nikolayk812/till/internal/domain"
)

type Memory struct {
	mu      sync.RWMutex
	items   map[string]domain.CatalogItem
	lookups int
}

func NewMemory(items ...domain.CatalogItem) *Memory {
	m := &Memory{items: make(map[string]domain.CatalogItem, len(items))}
	for _, item := range items {
		m.items[item.ItemID] = item
	}
	return m
}

func (m *Memory) Put(item domain.CatalogItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ItemID] = item
}

func (m *Memory) Lookup(_ context.Context, itemID string) (domain.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++

	item, ok := m.items[itemID]
	if !ok {
		return domain.CatalogItem{}, fmt.Errorf("itemID[%s]: %w", itemID, domain.ErrItemNotFound)
	}
	return item, nil
}

func (m *Memory) ListAvailable(_ context.Context) ([]domain.CatalogItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.CatalogItem
	for _, item := range m.items {
		if item.AvailableQuantity > 0 {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DisplayName < out[j].DisplayName
	})
	return out, nil
}

// Lookups reports how many Lookup calls were served.
func (m *Memory) Lookups() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookups
}
