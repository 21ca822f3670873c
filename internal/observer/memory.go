package observer

import (
	"context"
	"sync"
)

// Memory captures observations in memory. Test use only.
type Memory struct {
	mu     sync.Mutex
	errors []RecordedError
	events []RecordedEvent
}

type RecordedError struct {
	Scope string
	Err   error
}

type RecordedEvent struct {
	Name  string
	Attrs map[string]any
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordError(_ context.Context, scope string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, RecordedError{Scope: scope, Err: err})
}

func (m *Memory) RecordEvent(_ context.Context, name string, attrs map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, RecordedEvent{Name: name, Attrs: attrs})
}

func (m *Memory) Errors() []RecordedError {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedError, len(m.errors))
	copy(out, m.errors)
	return out
}

func (m *Memory) Events() []RecordedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedEvent, len(m.events))
	copy(out, m.events)
	return out
}
