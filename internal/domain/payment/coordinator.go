package payment

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type Status string

const (
	StatusIdle          Status = "idle"
	StatusCreatingOrder Status = "creating_order"
	StatusOrderCreated  Status = "order_created"
	StatusProcessing    Status = "processing"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

var (
	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrPaymentInProgress = errors.New("a payment is already in progress for this session")
	ErrSessionNotFound   = errors.New("payment session not found")
	ErrNoActiveOrder     = errors.New("no order is pending for this session")
)

// validTransitions defines the forward moves of the payment state
// machine. Fail and Reset are allowed from any state and are handled
// outside this table.
var validTransitions = map[Status][]Status{
	StatusIdle:          {StatusCreatingOrder},
	StatusCreatingOrder: {StatusOrderCreated},
	StatusOrderCreated:  {StatusProcessing},
	StatusProcessing:    {StatusCompleted},
	StatusCompleted:     {},
	StatusFailed:        {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// inProgress reports whether a status is inside the guarded window:
// order creation through processing.
func inProgress(s Status) bool {
	return s == StatusCreatingOrder || s == StatusOrderCreated || s == StatusProcessing
}

// Session is one checkout attempt. OrderID is set only between order
// creation success and payment completion or failure; it is the
// correlation key that keeps a stale approval callback from being
// applied to a newer, unrelated order.
type Session struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	OrderID   string    `json:"order_id,omitempty"`
	Method    string    `json:"method,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GuardFunc is invoked when a session enters or leaves the in-progress
// window. It replaces the browser-global in-progress flag: the HTTP
// layer can use it to expose "do not navigate away" state.
type GuardFunc func(sessionID string, active bool)

// Coordinator tracks payment sessions and enforces the state machine.
// It has exactly one writer per session by construction: every mutation
// goes through the coordinator's mutex.
type Coordinator struct {
	mu       sync.Mutex
	sessions map[string]*Session
	guard    GuardFunc
}

func NewCoordinator(guard GuardFunc) *Coordinator {
	return &Coordinator{
		sessions: make(map[string]*Session),
		guard:    guard,
	}
}

// StartOrderCreation moves a session from Idle into CreatingOrder and
// activates the in-progress guard. A session mid-checkout is rejected,
// which is the duplicate-submission protection.
func (c *Coordinator) StartOrderCreation(sessionID, method string) error {
	return c.transition(sessionID, func(s *Session) error {
		if inProgress(s.Status) {
			return ErrPaymentInProgress
		}
		if s.Status == StatusCompleted || s.Status == StatusFailed {
			// Terminal states require an explicit reset before retry.
			return fmt.Errorf("%w: session %s is %s, reset before retrying", ErrInvalidTransition, sessionID, s.Status)
		}
		s.Status = StatusCreatingOrder
		s.Method = method
		s.OrderID = ""
		return nil
	})
}

// OrderCreated records the external order id for correlation.
func (c *Coordinator) OrderCreated(sessionID, orderID string) error {
	return c.transition(sessionID, func(s *Session) error {
		if !canTransition(s.Status, StatusOrderCreated) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StatusOrderCreated)
		}
		s.Status = StatusOrderCreated
		s.OrderID = orderID
		return nil
	})
}

func (c *Coordinator) StartProcessing(sessionID string) error {
	return c.transition(sessionID, func(s *Session) error {
		if !canTransition(s.Status, StatusProcessing) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StatusProcessing)
		}
		s.Status = StatusProcessing
		return nil
	})
}

// Complete finishes a successful capture: clears the order id and
// deactivates the guard.
func (c *Coordinator) Complete(sessionID string) error {
	return c.transition(sessionID, func(s *Session) error {
		if !canTransition(s.Status, StatusCompleted) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StatusCompleted)
		}
		s.Status = StatusCompleted
		s.OrderID = ""
		return nil
	})
}

// Fail moves a session to Failed from any state. Every failure path
// must land here so no session is stranded mid-checkout.
func (c *Coordinator) Fail(sessionID string) {
	_ = c.transition(sessionID, func(s *Session) error {
		s.Status = StatusFailed
		s.OrderID = ""
		return nil
	})
}

// Reset forces a session back to Idle (the retry affordance).
func (c *Coordinator) Reset(sessionID string) {
	_ = c.transition(sessionID, func(s *Session) error {
		s.Status = StatusIdle
		s.OrderID = ""
		s.Method = ""
		return nil
	})
}

// Session returns a copy of the session state, creating an Idle session
// on first access.
func (c *Coordinator) Session(sessionID string) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.get(sessionID)
}

// OrderID returns the pending order id for a session, if any.
func (c *Coordinator) OrderID(sessionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.get(sessionID)
	return s.OrderID, s.OrderID != ""
}

// InProgress reports whether the session is inside the guarded window.
func (c *Coordinator) InProgress(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return inProgress(c.get(sessionID).Status)
}

// get returns the live session pointer. Caller must hold the mutex.
func (c *Coordinator) get(sessionID string) *Session {
	s, ok := c.sessions[sessionID]
	if !ok {
		s = &Session{ID: sessionID, Status: StatusIdle, UpdatedAt: time.Now()}
		c.sessions[sessionID] = s
	}
	return s
}

// transition applies fn under the lock and fires the guard hook on
// in-progress edges after the lock is released.
func (c *Coordinator) transition(sessionID string, fn func(*Session) error) error {
	c.mu.Lock()
	s := c.get(sessionID)
	before := inProgress(s.Status)
	err := fn(s)
	if err == nil {
		s.UpdatedAt = time.Now()
	}
	after := inProgress(s.Status)
	c.mu.Unlock()

	if c.guard != nil && before != after {
		c.guard(sessionID, after)
	}
	return err
}
