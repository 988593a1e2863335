package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/example/checkout-service/internal/api/middleware"
	"github.com/example/checkout-service/internal/checkout"
	"github.com/example/checkout-service/internal/domain/cart"
	"github.com/example/checkout-service/internal/domain/order"
	"github.com/example/checkout-service/internal/domain/payment"
	"github.com/example/checkout-service/internal/infrastructure/store"
	"github.com/example/checkout-service/internal/paypal"
)

type Handlers struct {
	checkoutSvc *checkout.Service
	cartSvc     *cart.Service
	orders      store.OrderStore
}

func NewHandlers(checkoutSvc *checkout.Service, cartSvc *cart.Service, orders store.OrderStore) *Handlers {
	return &Handlers{
		checkoutSvc: checkoutSvc,
		cartSvc:     cartSvc,
		orders:      orders,
	}
}

// Cart Handlers

type cartItemRequest struct {
	ProductID     string `json:"product_id"`
	VariantID     string `json:"variant_id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	OriginalPrice int64  `json:"original_price"`
	Image         string `json:"image"`
	Quantity      int    `json:"quantity"`
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	state, err := h.cartSvc.Get(r.Context(), userID)
	if err != nil {
		respondAPIError(w, http.StatusInternalServerError, "failed to load cart", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondAPIError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	state, err := h.cartSvc.AddItem(r.Context(), userID, cart.LineItem{
		ProductID:     req.ProductID,
		VariantID:     req.VariantID,
		Name:          req.Name,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Image:         req.Image,
		Quantity:      req.Quantity,
	})
	if err != nil {
		respondAPIError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	productID := extractPathParam(r.URL.Path, "/cart/items/")

	var req struct {
		VariantID string `json:"variant_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondAPIError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	state, err := h.cartSvc.SetQuantity(r.Context(), userID, productID, req.VariantID, req.Quantity)
	if err != nil {
		respondAPIError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	productID := extractPathParam(r.URL.Path, "/cart/items/")
	variantID := r.URL.Query().Get("variant_id")

	state, err := h.cartSvc.RemoveItem(r.Context(), userID, productID, variantID)
	if err != nil {
		respondAPIError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.cartSvc.Clear(r.Context(), userID); err != nil {
		respondAPIError(w, http.StatusInternalServerError, "failed to clear cart", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout Handlers

type productRequest struct {
	ProductID string `json:"id"`
	VariantID string `json:"variant_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

func toOrderItems(products []productRequest) []order.Item {
	var items []order.Item
	for _, p := range products {
		qty := p.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, order.Item{
			ProductID: p.ProductID,
			VariantID: p.VariantID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  qty,
		})
	}
	return items
}

// CreateOrder handles POST /api/paypal/create_order.
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Amount   int64            `json:"amount"`
		Products []productRequest `json:"products"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondAPIError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.checkoutSvc.CreateOrder(r.Context(), userID, req.Amount, toOrderItems(req.Products))
	middleware.RecordPaymentOperation("create_order", err == nil)
	if err != nil {
		respondCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":       result.ID,
		"status":   result.Status,
		"links":    result.Links,
		"products": req.Products,
	})
}

// CaptureOrder handles POST /api/paypal/capture_order. The optional
// client_error field carries a failure reported by the approval widget
// instead of an approval.
func (h *Handlers) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		OrderID     string `json:"order_id"`
		ClientError *struct {
			Code    string `json:"code"`
			Details string `json:"details"`
		} `json:"client_error"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondAPIError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if req.ClientError != nil {
		retry, err := h.checkoutSvc.HandleApprovalError(r.Context(), userID, req.OrderID, req.ClientError.Code, req.ClientError.Details)
		if retry {
			respondJSON(w, http.StatusOK, map[string]any{"retry": true})
			return
		}
		if err == nil {
			// Stale report for an order the session no longer tracks.
			respondJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
			return
		}
		respondCheckoutError(w, err)
		return
	}

	stored, err := h.checkoutSvc.Capture(r.Context(), userID, req.OrderID)
	middleware.RecordPaymentOperation("capture", err == nil)
	if err != nil {
		if paypal.IsKind(err, paypal.KindOrderMismatch) {
			// Stale approval callback: dropped, never surfaced.
			respondJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
			return
		}
		respondCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"orderId": stored.ID,
		"status":  stored.Status,
	})
}

// CancelCheckout handles the explicit buyer cancel: reset now, no retry.
func (h *Handlers) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	h.checkoutSvc.Cancel(userID)
	w.WriteHeader(http.StatusNoContent)
}

// ResetCheckout returns a failed session to idle (the retry affordance).
func (h *Handlers) ResetCheckout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	h.checkoutSvc.Reset(userID)
	w.WriteHeader(http.StatusNoContent)
}

// GetCheckoutSession exposes the payment session state. Clients use
// in_progress to decide whether to warn before navigation.
func (h *Handlers) GetCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	session := h.checkoutSvc.Session(userID)
	respondJSON(w, http.StatusOK, map[string]any{
		"session":     session,
		"in_progress": h.checkoutSvc.InProgress(userID),
	})
}

// Order Handlers

// PersistOrder handles POST /api/orders: recording a captured order
// reported by the client, deduplicated on the PayPal order id.
func (h *Handlers) PersistOrder(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		Amount        int64            `json:"amount"`
		Products      []productRequest `json:"products"`
		PaymentMethod string           `json:"paymentMethod"`
		PayPalOrderID string           `json:"paypalOrderId"`
		Currency      string           `json:"currency"`
		PayPalDetails json.RawMessage  `json:"paypalDetails"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondAPIError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	method := req.PaymentMethod
	if method == "" {
		method = "paypal"
	}

	stored, err := h.checkoutSvc.PersistExternal(r.Context(), userID, req.Amount, req.Currency,
		toOrderItems(req.Products), method, req.PayPalOrderID, req.PayPalDetails)
	if err != nil {
		if errors.Is(err, order.ErrInvalidAmount) || errors.Is(err, order.ErrMissingPayPalOrder) {
			respondAPIError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		respondAPIError(w, http.StatusInternalServerError, "failed to persist order", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"orderId": stored.ID})
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	orders, err := h.orders.ListOrdersByUser(r.Context(), userID)
	if err != nil {
		respondAPIError(w, http.StatusInternalServerError, "failed to list orders", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")

	o, ok, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondAPIError(w, http.StatusInternalServerError, "failed to load order", err.Error())
		return
	}
	if !ok {
		respondAPIError(w, http.StatusNotFound, "order not found", "")
		return
	}

	// Authorization check: user can only access their own orders (admins can access all)
	if o.UserID != middleware.GetUserID(r.Context()) && !isAdmin(r) {
		respondAPIError(w, http.StatusForbidden, "forbidden", "")
		return
	}

	respondJSON(w, http.StatusOK, o)
}

// Admin Handlers

func (h *Handlers) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAllOrders(r.Context())
	if err != nil {
		respondAPIError(w, http.StatusInternalServerError, "failed to list orders", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondAPIError writes the {error, status, details} error shape.
func respondAPIError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"error": message, "status": status}
	if details != "" {
		body["details"] = details
	}
	json.NewEncoder(w).Encode(body)
}

// respondCheckoutError maps checkout failures onto HTTP statuses.
func respondCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidAmount):
		respondAPIError(w, http.StatusBadRequest, "amount must be positive", "")
	case errors.Is(err, order.ErrAmountMismatch):
		respondAPIError(w, http.StatusBadRequest, "amount does not match item total", "")
	case errors.Is(err, payment.ErrPaymentInProgress):
		respondAPIError(w, http.StatusConflict, "a payment is already in progress", "")
	case errors.Is(err, payment.ErrInvalidTransition):
		respondAPIError(w, http.StatusConflict, "checkout session is not in a valid state", err.Error())
	case errors.Is(err, checkout.ErrNoPendingOrder):
		respondAPIError(w, http.StatusConflict, "no order is pending for this session", "")
	default:
		var pe *paypal.Error
		if errors.As(err, &pe) {
			respondPayPalError(w, pe)
			return
		}
		respondAPIError(w, http.StatusInternalServerError, "checkout failed", err.Error())
	}
}

func respondPayPalError(w http.ResponseWriter, pe *paypal.Error) {
	switch pe.Kind {
	case paypal.KindConfiguration:
		respondAPIError(w, http.StatusInternalServerError, "payment provider is not configured", pe.Detail)
	case paypal.KindTimeout:
		respondAPIError(w, http.StatusGatewayTimeout, "payment capture timed out", "the capture may be retried")
	case paypal.KindWindowClosed:
		respondAPIError(w, http.StatusBadGateway, "payment window was closed", "retry the payment")
	case paypal.KindUpstream:
		respondAPIError(w, http.StatusBadGateway, "payment provider rejected the request", pe.Detail)
	default:
		respondAPIError(w, http.StatusBadGateway, "payment provider is unreachable", "")
	}
}

func extractPathParam(path, prefix string) string {
	param := strings.TrimPrefix(path, prefix)
	if unescaped, err := url.PathUnescape(param); err == nil {
		return unescaped
	}
	return param
}

// isAdmin checks if the current user has admin role
func isAdmin(r *http.Request) bool {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return false
	}
	return claims.Role == "admin"
}
