package order

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound means no order exists under the given id.
var ErrNotFound = errors.New("order not found")

// Store persists settlement orders. UpdateStatus is monotonic: once an
// order is terminal its status never regresses, no matter whether the
// poller or the webhook reports later.
type Store interface {
	Save(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	SetExecution(ctx context.Context, id, txHash, via string) error
}

// MemoryStore is mostly for testing and DSN-less deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Order)}
}

func (m *MemoryStore) Save(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[o.ID] = o
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.data[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.data[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status.Terminal() {
		return nil
	}
	o.Status = status
	m.data[id] = o
	return nil
}

func (m *MemoryStore) SetExecution(_ context.Context, id, txHash, via string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.data[id]
	if !ok {
		return ErrNotFound
	}
	o.TxHash = txHash
	o.ExecutedVia = via
	m.data[id] = o
	return nil
}
