package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"lockstats/internal/domain"
)

// Memory keeps encoded entities in a map; for dev (one instance) and tests.
// Values are stored as JSON so callers never share pointers with the store.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte, 1024)}
}

func (m *Memory) Load(_ context.Context, kind domain.Kind, id string, dst any) (bool, error) {
	m.mu.RLock()
	raw, ok := m.items[memKey(kind, id)]
	m.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %s %s: %w", kind, id, err)
	}
	return true, nil
}

func (m *Memory) Save(_ context.Context, e Entity) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", e.Kind(), e.Key(), err)
	}

	m.mu.Lock()
	m.items[memKey(e.Kind(), e.Key())] = raw
	m.mu.Unlock()

	return nil
}

func (m *Memory) Exists(_ context.Context, kind domain.Kind, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.items[memKey(kind, id)]
	return ok, nil
}

func (m *Memory) Health(context.Context) error {
	return nil
}

// Len number of stored entities of the kind
func (m *Memory) Len(kind domain.Kind) int {
	prefix := string(kind) + ":"

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for k := range m.items {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

func memKey(kind domain.Kind, id string) string {
	return string(kind) + ":" + id
}
