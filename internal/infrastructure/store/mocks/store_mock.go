package mocks

import (
	"context"
	"sync"

	"github.com/example/checkout-service/internal/domain/order"
)

// MockCartStore is a mock implementation of store.CartStore for testing
type MockCartStore struct {
	mu    sync.RWMutex
	carts map[string][]byte

	// For tracking calls in tests
	SaveCalls   []SaveCartCall
	DeleteCalls []string
	GetErr      error
	SaveErr     error
	DeleteErr   error
}

// SaveCartCall records parameters passed to SaveCart
type SaveCartCall struct {
	CartID string
	State  []byte
}

func NewMockCartStore() *MockCartStore {
	return &MockCartStore{carts: make(map[string][]byte)}
}

func (m *MockCartStore) GetCart(ctx context.Context, cartID string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, false, m.GetErr
	}
	data, ok := m.carts[cartID]
	return data, ok, nil
}

func (m *MockCartStore) SaveCart(ctx context.Context, cartID string, state []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls = append(m.SaveCalls, SaveCartCall{CartID: cartID, State: state})
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.carts[cartID] = state
	return nil
}

func (m *MockCartStore) DeleteCart(ctx context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, cartID)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.carts, cartID)
	return nil
}

// SetCart seeds persisted state directly for testing
func (m *MockCartStore) SetCart(cartID string, state []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[cartID] = state
}

// MockOrderStore is a mock implementation of store.OrderStore for testing
type MockOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order // keyed by paypal order id

	// For tracking calls in tests
	UpsertCalls []*order.Order
	UpsertErr   error
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{orders: make(map[string]*order.Order)}
}

func (m *MockOrderStore) UpsertOrder(ctx context.Context, o *order.Order) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls = append(m.UpsertCalls, o)
	if m.UpsertErr != nil {
		return nil, m.UpsertErr
	}
	if existing, ok := m.orders[o.PayPalOrderID]; ok {
		return existing, nil
	}
	stored := *o
	m.orders[o.PayPalOrderID] = &stored
	return &stored, nil
}

func (m *MockOrderStore) GetOrder(ctx context.Context, id string) (*order.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.ID == id {
			return o, true, nil
		}
	}
	return nil, false, nil
}

func (m *MockOrderStore) GetOrderByPayPalID(ctx context.Context, paypalOrderID string) (*order.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[paypalOrderID]
	return o, ok, nil
}

func (m *MockOrderStore) ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *MockOrderStore) ListAllOrders(ctx context.Context) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		result = append(result, o)
	}
	return result, nil
}

// Reset clears all orders and recorded calls
func (m *MockOrderStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = make(map[string]*order.Order)
	m.UpsertCalls = nil
	m.UpsertErr = nil
}
