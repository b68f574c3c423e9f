// Package cache stores compiled math fragments keyed by expression and mode.
package cache

import (
	"sync"

	"github.com/ziadkadry99/examrender/internal/texmath"
)

type key struct {
	raw  string
	mode texmath.Mode
}

// Memory is a process-local fragment cache safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[key]string
}

// NewMemory creates an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[key]string)}
}

func (m *Memory) Get(raw string, mode texmath.Mode) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key{raw, mode}]
	return v, ok
}

func (m *Memory) Put(raw string, mode texmath.Mode, markup string) {
	m.mu.Lock()
	m.entries[key{raw, mode}] = markup
	m.mu.Unlock()
}

// Len reports the number of cached fragments.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
