package harvest

import (
	"slices"
	"sync"
)

// MissingPages is the set of pages of a partition that have no durable
// artifact yet. Safe for concurrent use.
type MissingPages struct {
	mu    sync.Mutex
	pages map[int]struct{}
}

// NewMissingPages returns an empty set.
func NewMissingPages() *MissingPages {
	return &MissingPages{pages: make(map[int]struct{})}
}

// Add marks page as missing.
func (m *MissingPages) Add(page int) {
	m.mu.Lock()
	m.pages[page] = struct{}{}
	m.mu.Unlock()
}

// Remove clears page once its artifact is durable.
func (m *MissingPages) Remove(page int) {
	m.mu.Lock()
	delete(m.pages, page)
	m.mu.Unlock()
}

// Has reports whether page is still missing.
func (m *MissingPages) Has(page int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pages[page]
	return ok
}

// Len returns the number of missing pages.
func (m *MissingPages) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}

// IsEmpty reports whether every page has an artifact.
func (m *MissingPages) IsEmpty() bool {
	return m.Len() == 0
}

// Snapshot returns the missing pages in ascending order.
func (m *MissingPages) Snapshot() []int {
	m.mu.Lock()
	out := make([]int, 0, len(m.pages))
	for p := range m.pages {
		out = append(out, p)
	}
	m.mu.Unlock()

	slices.Sort(out)
	return out
}
