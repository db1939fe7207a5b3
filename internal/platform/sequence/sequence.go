// Package sequence provides atomic, collision-free sequence numbers for
// human-facing identifiers (claim transaction numbers, service-request
// numbers, ledger transaction numbers, authorization codes). Scopes are
// arbitrary strings; each scope counts independently.
package sequence

import (
	"context"
	"sync"
)

// Generator allocates the next number in a named scope. Implementations must
// be safe for concurrent use across workers; a read-then-increment race is
// not acceptable.
type Generator interface {
	Next(ctx context.Context, scope string) (uint64, error)
}

// Memory is an in-process Generator used by tests and the dev CLI.
type Memory struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func NewMemory() *Memory {
	return &Memory{counts: make(map[string]uint64)}
}

func (m *Memory) Next(_ context.Context, scope string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope], nil
}
