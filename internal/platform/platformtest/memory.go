// Package platformtest provides an in-memory platform.Platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/Martian-dev/mailpoll/internal/incident"
)

// Memory keeps state and emitted incidents in memory
type Memory struct {
	mu      sync.Mutex
	states  map[string][]byte
	files   int
	Emitted map[string][]incident.Incident

	// PersistErr, when set, fails every PersistState call
	PersistErr error
	// EmitErr, when set, fails every EmitIncidents call
	EmitErr error
	// Persists counts successful PersistState calls
	Persists int
}

// New creates an empty platform
func New() *Memory {
	return &Memory{
		states:  make(map[string][]byte),
		Emitted: make(map[string][]incident.Incident),
	}
}

func (m *Memory) LoadState(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), s...), nil
}

func (m *Memory) PersistState(ctx context.Context, key string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PersistErr != nil {
		return m.PersistErr
	}
	m.states[key] = append([]byte(nil), state...)
	m.Persists++
	return nil
}

func (m *Memory) DeleteState(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}

func (m *Memory) EmitIncidents(ctx context.Context, key string, incidents []incident.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EmitErr != nil {
		return m.EmitErr
	}
	for i := range incidents {
		for j := range incidents[i].Attachment {
			m.files++
			incidents[i].Attachment[j].Path = fmt.Sprintf("file-%d", m.files)
		}
	}
	m.Emitted[key] = append(m.Emitted[key], incidents...)
	return nil
}

// State returns the raw persisted state for key
func (m *Memory) State(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[key]
}
