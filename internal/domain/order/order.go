package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCreated   Status = "created"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrEmptyOrder         = errors.New("order must have at least one item")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrAmountMismatch     = errors.New("amount does not match item total")
	ErrInvalidStatus      = errors.New("invalid order status transition")
	ErrOrderCompleted     = errors.New("order is already completed")
	ErrPayPalIDMismatch   = errors.New("order is bound to a different paypal order id")
	ErrMissingPayPalOrder = errors.New("paypal_order_id is required")
)

// validTransitions defines allowed state transitions. Status history is
// append-only: completed and failed are terminal.
var validTransitions = map[Status][]Status{
	StatusCreated:   {StatusApproved, StatusCompleted, StatusFailed},
	StatusApproved:  {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

func (o *Order) transitionError(target Status) error {
	if o.Status == StatusCompleted {
		return ErrOrderCompleted
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
}

// Item is a purchased product snapshot at capture time.
type Item struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

// Order is the server-persisted record of a captured payment. It is
// created once, at capture time; the PayPal order id is the external
// correlation key and never changes after creation.
type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	Items         []Item          `json:"items,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	PayPalOrderID string          `json:"paypal_order_id"`
	Status        Status          `json:"status"`
	PayPalDetails json.RawMessage `json:"paypal_details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// New builds an order record ready for persistence.
func New(userID string, amount int64, currency string, items []Item, paymentMethod, paypalOrderID string, details json.RawMessage) (*Order, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if paypalOrderID == "" {
		return nil, ErrMissingPayPalOrder
	}

	now := time.Now()
	return &Order{
		ID:            uuid.New().String(),
		UserID:        userID,
		Amount:        amount,
		Currency:      currency,
		Items:         items,
		PaymentMethod: paymentMethod,
		PayPalOrderID: paypalOrderID,
		Status:        StatusCreated,
		PayPalDetails: details,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// TransitionTo advances the status. Invalid transitions are rejected so
// a completed order can never be silently rewritten.
func (o *Order) TransitionTo(target Status) error {
	if !o.CanTransitionTo(target) {
		return o.transitionError(target)
	}
	o.Status = target
	o.UpdatedAt = time.Now()
	return nil
}

// Total returns the item total in minor units, falling back to Amount
// when no item breakdown was recorded.
func (o *Order) Total() int64 {
	if len(o.Items) == 0 {
		return o.Amount
	}
	var total int64
	for _, it := range o.Items {
		total += it.Price * int64(it.Quantity)
	}
	return total
}
