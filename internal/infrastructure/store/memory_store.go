package store

import (
	"context"
	"sort"
	"sync"

	"github.com/example/checkout-service/internal/domain/order"
)

// MemoryStore is an in-memory implementation of CartStore and
// OrderStore, used in tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	carts  map[string][]byte
	orders map[string]*order.Order // keyed by internal order id
	byPP   map[string]string       // paypal order id -> internal id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts:  make(map[string][]byte),
		orders: make(map[string]*order.Order),
		byPP:   make(map[string]string),
	}
}

// Cart persistence

func (m *MemoryStore) GetCart(ctx context.Context, cartID string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.carts[cartID]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (m *MemoryStore) SaveCart(ctx context.Context, cartID string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := make([]byte, len(state))
	copy(data, state)
	m.carts[cartID] = data
	return nil
}

func (m *MemoryStore) DeleteCart(ctx context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, cartID)
	return nil
}

// Order persistence

func (m *MemoryStore) UpsertOrder(ctx context.Context, o *order.Order) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byPP[o.PayPalOrderID]; ok {
		existing := *m.orders[id]
		return &existing, nil
	}

	stored := *o
	m.orders[o.ID] = &stored
	m.byPP[o.PayPalOrderID] = o.ID
	result := stored
	return &result, nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*order.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, false, nil
	}
	out := *o
	return &out, true, nil
}

func (m *MemoryStore) GetOrderByPayPalID(ctx context.Context, paypalOrderID string) (*order.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPP[paypalOrderID]
	if !ok {
		return nil, false, nil
	}
	out := *m.orders[id]
	return &out, true, nil
}

func (m *MemoryStore) ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out := *o
			result = append(result, &out)
		}
	}
	sortOrders(result)
	return result, nil
}

func (m *MemoryStore) ListAllOrders(ctx context.Context) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out := *o
		result = append(result, &out)
	}
	sortOrders(result)
	return result, nil
}

// sortOrders orders newest first for stable listings.
func sortOrders(orders []*order.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
