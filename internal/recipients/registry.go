// Package recipients keeps the set of device tokens that receive arrival
// notifications.
package recipients

import (
	"context"
	"sync"
)

// Registry is a live, mutable recipient set. Implementations are safe for
// concurrent use; List always reflects the current contents.
type Registry interface {
	Add(ctx context.Context, token string) (bool, error)
	Remove(ctx context.Context, token string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Memory is an in-process registry. Tokens are listed in registration order.
type Memory struct {
	mu     sync.RWMutex
	order  []string
	tokens map[string]struct{}
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]struct{})}
}

// Add registers token and reports whether it was new.
func (m *Memory) Add(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; ok {
		return false, nil
	}
	m.tokens[token] = struct{}{}
	m.order = append(m.order, token)
	return true, nil
}

// Remove unregisters token and reports whether it was present.
func (m *Memory) Remove(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token]; !ok {
		return false, nil
	}
	delete(m.tokens, token)
	for i, t := range m.order {
		if t == token {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// List returns a copy of the registered tokens.
func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

// Count returns the number of registered tokens.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens), nil
}
