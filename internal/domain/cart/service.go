package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/example/checkout-service/internal/infrastructure/store"
)

// Publisher emits domain events for downstream consumers. Events are a
// notification stream, not the source of truth for cart contents.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, data any) error
}

// Service maintains the authoritative cart state per user, persisted
// through a CartStore so it survives reloads.
type Service struct {
	carts     store.CartStore
	publisher Publisher
}

func NewService(carts store.CartStore, publisher Publisher) *Service {
	return &Service{carts: carts, publisher: publisher}
}

// GetCartID returns the cart ID for a user (using userID as cartID for simplicity)
func GetCartID(userID string) string {
	return "cart-" + userID
}

// Get loads the current cart state, hydrating from the store.
func (s *Service) Get(ctx context.Context, userID string) (State, error) {
	return s.load(ctx, GetCartID(userID)), nil
}

func (s *Service) AddItem(ctx context.Context, userID string, item LineItem) (State, error) {
	if item.ProductID == "" {
		return State{}, ErrInvalidProduct
	}

	cartID := GetCartID(userID)
	next := Apply(s.load(ctx, cartID), AddItem{Item: item})
	if err := s.save(ctx, cartID, next); err != nil {
		return State{}, err
	}

	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	s.publish(ctx, cartID, EventItemAdded, ItemAddedToCart{
		CartID:    cartID,
		UserID:    userID,
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Quantity:  qty,
		Price:     item.Price,
		AddedAt:   time.Now(),
	})
	return next, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID, variantID string) (State, error) {
	if productID == "" {
		return State{}, ErrInvalidProduct
	}

	cartID := GetCartID(userID)
	next := Apply(s.load(ctx, cartID), RemoveItem{ProductID: productID, VariantID: variantID})
	if err := s.save(ctx, cartID, next); err != nil {
		return State{}, err
	}

	s.publish(ctx, cartID, EventItemRemoved, ItemRemovedFromCart{
		CartID:    cartID,
		UserID:    userID,
		ProductID: productID,
		VariantID: variantID,
		RemovedAt: time.Now(),
	})
	return next, nil
}

// SetQuantity sets a line's quantity; quantity <= 0 removes the line.
func (s *Service) SetQuantity(ctx context.Context, userID, productID, variantID string, quantity int) (State, error) {
	if productID == "" {
		return State{}, ErrInvalidProduct
	}

	cartID := GetCartID(userID)
	next := Apply(s.load(ctx, cartID), SetQuantity{ProductID: productID, VariantID: variantID, Quantity: quantity})
	if err := s.save(ctx, cartID, next); err != nil {
		return State{}, err
	}

	if quantity <= 0 {
		s.publish(ctx, cartID, EventItemRemoved, ItemRemovedFromCart{
			CartID:    cartID,
			UserID:    userID,
			ProductID: productID,
			VariantID: variantID,
			RemovedAt: time.Now(),
		})
	}
	return next, nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	cartID := GetCartID(userID)
	if err := s.carts.DeleteCart(ctx, cartID); err != nil {
		return fmt.Errorf("failed to clear cart %s: %w", cartID, err)
	}

	s.publish(ctx, cartID, EventCartCleared, CartCleared{
		CartID:    cartID,
		UserID:    userID,
		ClearedAt: time.Now(),
	})
	return nil
}

// load hydrates the cart from the store. Missing or corrupt persisted
// state yields an empty cart: fail open, log, never crash checkout.
func (s *Service) load(ctx context.Context, cartID string) State {
	data, ok, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		log.Printf("[Cart] Failed to load cart %s: %v", cartID, err)
		return Empty()
	}
	if !ok {
		return Empty()
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("[Cart] Discarding corrupt state for cart %s: %v", cartID, err)
		return Empty()
	}
	if state.Items == nil {
		state.Items = []LineItem{}
	}
	return state
}

func (s *Service) save(ctx context.Context, cartID string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal cart state: %w", err)
	}
	if err := s.carts.SaveCart(ctx, cartID, data); err != nil {
		return fmt.Errorf("failed to save cart %s: %w", cartID, err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, cartID, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, cartID, eventType, data); err != nil {
		log.Printf("[Cart] Failed to publish event for cart %s: %v", cartID, err)
	}
}
