package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/checkout-service/internal/domain/cart"
	"github.com/example/checkout-service/internal/domain/order"
	"github.com/example/checkout-service/internal/domain/payment"
	"github.com/example/checkout-service/internal/infrastructure/store"
	"github.com/example/checkout-service/internal/paypal"
)

const (
	// CaptureTimeout bounds a single capture attempt.
	defaultCaptureTimeout = 30 * time.Second
	// windowClosedBudget is how many times a closed approval popup is
	// retried before the failure is surfaced.
	windowClosedBudget = 3
	defaultRetryDelay  = 500 * time.Millisecond
)

var ErrNoPendingOrder = errors.New("no order was created for this session")

// PayPalClient is the slice of the PayPal REST client the checkout
// flow needs.
type PayPalClient interface {
	CreateOrder(ctx context.Context, amount int64, currency string, items []paypal.PurchaseItem) (*paypal.OrderResult, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error)
}

// Publisher emits order lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, data any) error
}

// pendingOrder is the checkout data attached to a session between
// order creation and completion.
type pendingOrder struct {
	orderID             string
	amount              int64
	items               []order.Item
	windowClosedRetries int
}

// Service drives the two-phase create/capture flow against PayPal and
// owns the ordering guarantees: token before create, create before
// capture, persist before success is reported.
type Service struct {
	paypal      PayPalClient
	coordinator *payment.Coordinator
	carts       *cart.Service
	orders      store.OrderStore
	publisher   Publisher
	currency    string

	// Tunable in tests.
	CaptureTimeout time.Duration
	RetryDelay     time.Duration

	mu      sync.Mutex
	pending map[string]*pendingOrder
}

func NewService(pp PayPalClient, coordinator *payment.Coordinator, carts *cart.Service, orders store.OrderStore, publisher Publisher, currency string) *Service {
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		paypal:         pp,
		coordinator:    coordinator,
		carts:          carts,
		orders:         orders,
		publisher:      publisher,
		currency:       currency,
		CaptureTimeout: defaultCaptureTimeout,
		RetryDelay:     defaultRetryDelay,
		pending:        make(map[string]*pendingOrder),
	}
}

// CreateOrder validates the amount, moves the session into the guarded
// window and creates the PayPal order. A non-positive amount, or an
// amount that disagrees with the item total, is rejected before any
// PayPal call is made.
func (s *Service) CreateOrder(ctx context.Context, sessionID string, amount int64, items []order.Item) (*paypal.OrderResult, error) {
	if amount <= 0 {
		return nil, order.ErrInvalidAmount
	}
	if len(items) > 0 && itemTotal(items) != amount {
		return nil, order.ErrAmountMismatch
	}

	if err := s.coordinator.StartOrderCreation(sessionID, "paypal"); err != nil {
		return nil, err
	}

	var purchaseItems []paypal.PurchaseItem
	for _, it := range items {
		purchaseItems = append(purchaseItems, paypal.PurchaseItem{
			Name:     it.Name,
			Price:    it.Price,
			Quantity: it.Quantity,
		})
	}

	result, err := s.paypal.CreateOrder(ctx, amount, s.currency, purchaseItems)
	if err != nil {
		log.Printf("[Checkout] Order creation failed for session %s: %v", sessionID, err)
		s.fail(ctx, sessionID, "", err)
		return nil, err
	}

	if err := s.coordinator.OrderCreated(sessionID, result.ID); err != nil {
		// The session was reset underneath us; do not hand out an order
		// the coordinator no longer tracks.
		return nil, err
	}

	s.mu.Lock()
	s.pending[sessionID] = &pendingOrder{orderID: result.ID, amount: amount, items: items}
	s.mu.Unlock()

	log.Printf("[Checkout] Created PayPal order %s for session %s", result.ID, sessionID)
	return result, nil
}

// Capture finalizes a buyer-approved order. The orderID must match the
// session's pending order: a stale callback is dropped without a
// capture call and without a user-visible error. Capture runs under a
// bounded timeout; a closed approval popup is retried up to the budget
// before the failure is surfaced. Re-delivery of an already captured
// order returns the persisted record without a second capture call.
func (s *Service) Capture(ctx context.Context, sessionID, orderID string) (*order.Order, error) {
	pendingID, ok := s.coordinator.OrderID(sessionID)
	if !ok {
		// Idempotent re-delivery: the first capture already persisted
		// the order and cleared the correlation key.
		if existing, found, err := s.orders.GetOrderByPayPalID(ctx, orderID); err == nil && found {
			return existing, nil
		}
		return nil, ErrNoPendingOrder
	}
	if pendingID != orderID {
		log.Printf("[Checkout] Dropping stale approval for order %s (session %s expects %s)", orderID, sessionID, pendingID)
		return nil, &paypal.Error{Kind: paypal.KindOrderMismatch, Detail: "approval does not match the pending order"}
	}

	if err := s.coordinator.StartProcessing(sessionID); err != nil {
		return nil, err
	}

	result, err := s.captureWithRetry(ctx, sessionID, orderID)
	if err != nil {
		s.fail(ctx, sessionID, orderID, err)
		return nil, err
	}

	stored, err := s.persist(ctx, sessionID, orderID, result)
	if err != nil {
		// The charge went through but the record did not land; this
		// must surface as a failure, never as silent success.
		s.fail(ctx, sessionID, orderID, err)
		return nil, fmt.Errorf("capture succeeded but order persistence failed: %w", err)
	}

	if err := s.carts.Clear(ctx, sessionID); err != nil {
		log.Printf("[Checkout] Failed to clear cart for session %s: %v", sessionID, err)
	}

	if err := s.coordinator.Complete(sessionID); err != nil {
		log.Printf("[Checkout] Failed to complete session %s: %v", sessionID, err)
	}

	s.mu.Lock()
	delete(s.pending, sessionID)
	s.mu.Unlock()

	s.publish(ctx, orderID, order.EventOrderCompleted, order.OrderCompleted{
		OrderID:       stored.ID,
		UserID:        stored.UserID,
		PayPalOrderID: stored.PayPalOrderID,
		Amount:        stored.Amount,
		Currency:      stored.Currency,
		Items:         stored.Items,
		CompletedAt:   time.Now(),
	})

	log.Printf("[Checkout] Captured PayPal order %s for session %s", orderID, sessionID)
	return stored, nil
}

// captureWithRetry runs capture attempts under the bounded timeout.
// Only the closed-popup class is retried automatically; everything else
// surfaces on the first attempt.
func (s *Service) captureWithRetry(ctx context.Context, sessionID, orderID string) (*paypal.CaptureResult, error) {
	var lastErr error
	for attempt := 1; attempt <= windowClosedBudget; attempt++ {
		captureCtx, cancel := context.WithTimeout(ctx, s.CaptureTimeout)
		result, err := s.paypal.CaptureOrder(captureCtx, orderID)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !paypal.IsKind(err, paypal.KindWindowClosed) {
			return nil, err
		}
		if attempt < windowClosedBudget {
			log.Printf("[Checkout] Approval window closed for order %s (attempt %d/%d), retrying", orderID, attempt, windowClosedBudget)
			select {
			case <-time.After(s.RetryDelay):
			case <-ctx.Done():
				return nil, &paypal.Error{Kind: paypal.KindTimeout, Err: ctx.Err()}
			}
		}
	}
	return nil, lastErr
}

// persist builds the order record from the pending checkout data and
// stores it, deduplicating on the PayPal order id.
func (s *Service) persist(ctx context.Context, sessionID, orderID string, result *paypal.CaptureResult) (*order.Order, error) {
	s.mu.Lock()
	p := s.pending[sessionID]
	s.mu.Unlock()
	if p == nil {
		return nil, ErrNoPendingOrder
	}

	o, err := order.New(sessionID, p.amount, s.currency, p.items, "paypal", orderID, result.Details)
	if err != nil {
		return nil, err
	}
	if err := o.TransitionTo(order.StatusCompleted); err != nil {
		return nil, err
	}

	return s.orders.UpsertOrder(ctx, o)
}

// HandleApprovalError classifies an error reported by the approval
// widget. A closed popup inside the retry budget keeps the session
// alive and tells the caller to re-arm; anything else fails the
// session. A stale report for an unknown order is dropped.
func (s *Service) HandleApprovalError(ctx context.Context, sessionID, orderID, code, detail string) (retry bool, err error) {
	pendingID, ok := s.coordinator.OrderID(sessionID)
	if !ok || (orderID != "" && pendingID != orderID) {
		log.Printf("[Checkout] Dropping stale error report for order %s (session %s)", orderID, sessionID)
		return false, nil
	}

	classified := paypal.FromClientReport(code, detail)
	if classified.Kind == paypal.KindWindowClosed {
		s.mu.Lock()
		p := s.pending[sessionID]
		if p != nil {
			p.windowClosedRetries++
			retries := p.windowClosedRetries
			s.mu.Unlock()
			if retries < windowClosedBudget {
				log.Printf("[Checkout] Approval window closed for session %s (attempt %d/%d), re-arming", sessionID, retries, windowClosedBudget)
				time.Sleep(s.RetryDelay)
				return true, nil
			}
		} else {
			s.mu.Unlock()
		}
	}

	s.fail(ctx, sessionID, pendingID, classified)
	return false, classified
}

// Cancel is the explicit buyer cancel: immediate reset, no retry.
func (s *Service) Cancel(sessionID string) {
	s.mu.Lock()
	delete(s.pending, sessionID)
	s.mu.Unlock()
	s.coordinator.Reset(sessionID)
	log.Printf("[Checkout] Session %s cancelled", sessionID)
}

// Reset returns a failed or completed session to Idle for retry.
func (s *Service) Reset(sessionID string) {
	s.mu.Lock()
	delete(s.pending, sessionID)
	s.mu.Unlock()
	s.coordinator.Reset(sessionID)
}

// Session exposes the coordinator state for the session.
func (s *Service) Session(sessionID string) payment.Session {
	return s.coordinator.Session(sessionID)
}

// InProgress reports whether navigation away should be warned about.
func (s *Service) InProgress(sessionID string) bool {
	return s.coordinator.InProgress(sessionID)
}

func (s *Service) fail(ctx context.Context, sessionID, orderID string, cause error) {
	s.coordinator.Fail(sessionID)
	s.mu.Lock()
	delete(s.pending, sessionID)
	s.mu.Unlock()

	s.publish(ctx, sessionID, order.EventOrderFailed, order.OrderFailed{
		PayPalOrderID: orderID,
		UserID:        sessionID,
		Reason:        cause.Error(),
		FailedAt:      time.Now(),
	})
}

func itemTotal(items []order.Item) int64 {
	var total int64
	for _, it := range items {
		total += it.Price * int64(it.Quantity)
	}
	return total
}

func (s *Service) publish(ctx context.Context, key, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, key, eventType, data); err != nil {
		log.Printf("[Checkout] Failed to publish %s event: %v", eventType, err)
	}
}

// PersistExternal records an already captured order reported through
// the explicit persist endpoint, deduplicating on the PayPal order id.
func (s *Service) PersistExternal(ctx context.Context, userID string, amount int64, currency string, items []order.Item, paymentMethod, paypalOrderID string, details json.RawMessage) (*order.Order, error) {
	if currency == "" {
		currency = s.currency
	}
	o, err := order.New(userID, amount, currency, items, paymentMethod, paypalOrderID, details)
	if err != nil {
		return nil, err
	}
	if err := o.TransitionTo(order.StatusCompleted); err != nil {
		return nil, err
	}
	return s.orders.UpsertOrder(ctx, o)
}
