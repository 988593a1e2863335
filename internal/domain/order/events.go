package order

import "time"

const (
	EventOrderCompleted = "OrderCompleted"
	EventOrderFailed    = "OrderFailed"
)

type OrderCompleted struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	PayPalOrderID string    `json:"paypal_order_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Items         []Item    `json:"items,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

type OrderFailed struct {
	PayPalOrderID string    `json:"paypal_order_id,omitempty"`
	UserID        string    `json:"user_id"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
}
