package session

import (
	"context"
	"sync"
)

// MemoryStorage 进程内存储，重启后丢失。
type MemoryStorage struct {
	mu     sync.Mutex
	states map[int64]State
}

// NewMemoryStorage 创建内存存储。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{states: make(map[int64]State)}
}

func (m *MemoryStorage) Get(_ context.Context, chatID int64) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[chatID]
	if !ok {
		return Idle{}, nil
	}
	return s, nil
}

func (m *MemoryStorage) Set(_ context.Context, chatID int64, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, idle := state.(Idle); idle {
		delete(m.states, chatID)
		return nil
	}
	m.states[chatID] = state
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, chatID)
	return nil
}
