package registry

import "sync"

type (
	// Store persists the per module toggles.
	Store interface {
		Enabled(name string, def bool) bool
		SetEnabled(name string, enabled bool) error
		DebugLevel(name string) int
		SetDebugLevel(name string, level int) error
	}
	// MemoryStore is a Store that forgets on exit.
	MemoryStore struct {
		enabled map[string]bool
		debug   map[string]int
		sync.RWMutex
	}
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{enabled: map[string]bool{}, debug: map[string]int{}}
}

func (m *MemoryStore) Enabled(name string, def bool) bool {
	m.RLock()
	defer m.RUnlock()
	if v, ok := m.enabled[name]; ok {
		return v
	}
	return def
}

func (m *MemoryStore) SetEnabled(name string, enabled bool) error {
	m.Lock()
	defer m.Unlock()
	m.enabled[name] = enabled
	return nil
}

func (m *MemoryStore) DebugLevel(name string) int {
	m.RLock()
	defer m.RUnlock()
	return m.debug[name]
}

func (m *MemoryStore) SetDebugLevel(name string, level int) error {
	m.Lock()
	defer m.Unlock()
	m.debug[name] = level
	return nil
}
