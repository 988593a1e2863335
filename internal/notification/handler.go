package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/checkout-service/internal/domain/order"
	"github.com/example/checkout-service/internal/email"
	"github.com/example/checkout-service/internal/event"
)

// Handler processes order events for sending notifications. Confirmed
// orders are mailed to the configured recipient (shoppers are
// anonymous guests, so the recipient is the shop's order inbox).
type Handler struct {
	emailService *email.Service
	recipient    string
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service, recipient string) *Handler {
	return &Handler{
		emailService: emailSvc,
		recipient:    recipient,
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var env event.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	if env.Type == order.EventOrderCompleted {
		return h.handleOrderCompleted(env)
	}

	return nil
}

func (h *Handler) handleOrderCompleted(env event.Envelope) error {
	var e order.OrderCompleted
	if err := json.Unmarshal(env.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderCompleted event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing OrderCompleted event for order %s (paypal %s)", e.OrderID, e.PayPalOrderID)

	emailItems := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		emailItems[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	if err := h.emailService.SendOrderConfirmation(h.recipient, e.OrderID, e.Amount, e.Currency, emailItems); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", h.recipient, err)
		return err
	}

	log.Printf("[Notifier] Order confirmation email sent to %s for order %s", h.recipient, e.OrderID)
	return nil
}
