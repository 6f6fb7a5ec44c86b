package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"semear/internal/wallet"
)

// Memory is an in-process receipt store for tests and dry runs.
type Memory struct {
	mu       sync.RWMutex
	receipts map[string]wallet.Receipt
}

func NewMemory() *Memory {
	return &Memory{receipts: make(map[string]wallet.Receipt)}
}

func (m *Memory) Put(_ context.Context, r wallet.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.receipts[r.ID]; ok {
		return wallet.ErrAlreadySaved
	}
	m.receipts[r.ID] = r
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (wallet.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receipts[id]
	if !ok {
		return wallet.Receipt{}, wallet.ErrNotFound
	}
	return r, nil
}

func (m *Memory) List(context.Context) ([]wallet.Receipt, error) {
	m.mu.RLock()
	out := slices.Collect(maps.Values(m.receipts))
	m.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.receipts[id]; !ok {
		return wallet.ErrNotFound
	}
	delete(m.receipts, id)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
