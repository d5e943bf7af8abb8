package storage

import "sync"

// Memory is an in-process Provider. Nothing survives the process.
type Memory struct {
	mu    sync.Mutex
	token string
}

// NewMemory returns an empty in-memory credential slot.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *Memory) Save(token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}
