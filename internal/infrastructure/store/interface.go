package store

import (
	"context"

	"github.com/example/checkout-service/internal/domain/order"
)

// CartStore persists serialized cart state keyed by cart id. The cart
// domain owns the serialization format; the store treats it as opaque.
type CartStore interface {
	GetCart(ctx context.Context, cartID string) ([]byte, bool, error)
	SaveCart(ctx context.Context, cartID string, state []byte) error
	DeleteCart(ctx context.Context, cartID string) error
}

// OrderStore persists captured orders. The PayPal order id is the
// external correlation key: UpsertOrder must never create a second row
// for an id that is already recorded.
type OrderStore interface {
	// UpsertOrder inserts o unless an order with the same PayPal order
	// id exists, in which case the existing record is returned
	// untouched.
	UpsertOrder(ctx context.Context, o *order.Order) (*order.Order, error)
	GetOrder(ctx context.Context, id string) (*order.Order, bool, error)
	GetOrderByPayPalID(ctx context.Context, paypalOrderID string) (*order.Order, bool, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error)
	ListAllOrders(ctx context.Context) ([]*order.Order, error)
}
