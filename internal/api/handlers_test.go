package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/checkout-service/internal/auth"
	"github.com/example/checkout-service/internal/checkout"
	"github.com/example/checkout-service/internal/domain/cart"
	"github.com/example/checkout-service/internal/domain/payment"
	"github.com/example/checkout-service/internal/infrastructure/store"
	"github.com/example/checkout-service/internal/paypal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPayPal is a scripted PayPal client for handler tests.
type stubPayPal struct {
	CreateErr  error
	CaptureErr error
}

func (s *stubPayPal) CreateOrder(ctx context.Context, amount int64, currency string, items []paypal.PurchaseItem) (*paypal.OrderResult, error) {
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	return &paypal.OrderResult{
		ID:     "PP-123",
		Status: "CREATED",
		Links:  []paypal.Link{{Href: "https://paypal.test/approve", Rel: "approve"}},
	}, nil
}

func (s *stubPayPal) CaptureOrder(ctx context.Context, orderID string) (*paypal.CaptureResult, error) {
	if s.CaptureErr != nil {
		return nil, s.CaptureErr
	}
	return &paypal.CaptureResult{ID: orderID, Status: "COMPLETED", Details: []byte(`{"status":"COMPLETED"}`)}, nil
}

type apiTestEnv struct {
	router     http.Handler
	jwtService *auth.JWTService
	paypal     *stubPayPal
	store      *store.MemoryStore
}

func newAPITestEnv(t *testing.T) *apiTestEnv {
	t.Helper()

	pp := &stubPayPal{}
	mem := store.NewMemoryStore()
	cartSvc := cart.NewService(mem, nil)
	coordinator := payment.NewCoordinator(nil)
	checkoutSvc := checkout.NewService(pp, coordinator, cartSvc, mem, nil, "USD")
	checkoutSvc.RetryDelay = time.Millisecond

	jwtService := auth.NewJWTService("test-secret-key-for-handler-tests", 24*time.Hour)

	adminHash, err := auth.HashPassword("admin-password")
	require.NoError(t, err)

	handlers := NewHandlers(checkoutSvc, cartSvc, mem)
	authHandlers := NewAuthHandlers(jwtService, "admin@example.com", adminHash)
	router := NewRouter(RouterConfig{
		Handlers:     handlers,
		AuthHandlers: authHandlers,
		JWTService:   jwtService,
	})

	return &apiTestEnv{router: router, jwtService: jwtService, paypal: pp, store: mem}
}

func (e *apiTestEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, _, err := e.jwtService.GenerateToken(userID, "", role)
	require.NoError(t, err)
	return token
}

func (e *apiTestEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// ============================================
// Auth Tests
// ============================================

func TestAPI_GuestSession(t *testing.T) {
	env := newAPITestEnv(t)

	rec := env.request(t, http.MethodPost, "/auth/guest", "", nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["token"])
	assert.Contains(t, body["user_id"], "guest-")
	assert.Equal(t, auth.RoleShopper, body["role"])

	// Cookie set for browsers
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "access_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestAPI_AdminLogin(t *testing.T) {
	env := newAPITestEnv(t)

	rec := env.request(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "admin@example.com",
		"password": "admin-password",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, auth.RoleAdmin, body["role"])
}

func TestAPI_AdminLogin_WrongPassword(t *testing.T) {
	env := newAPITestEnv(t)

	rec := env.request(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "admin@example.com",
		"password": "wrong",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_AuthRequired(t *testing.T) {
	env := newAPITestEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/cart"},
		{http.MethodPost, "/cart/items"},
		{http.MethodPost, "/api/paypal/create_order"},
		{http.MethodPost, "/api/paypal/capture_order"},
		{http.MethodGet, "/api/paypal/session"},
		{http.MethodGet, "/orders"},
	}

	for _, p := range paths {
		rec := env.request(t, p.method, p.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}
}

// ============================================
// Cart Tests
// ============================================

func TestAPI_CartLifecycle(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	// Empty cart
	rec := env.request(t, http.MethodGet, "/cart", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(0), body["total"])

	// Add an item
	rec = env.request(t, http.MethodPost, "/cart/items", token, map[string]any{
		"product_id": "p1",
		"name":       "Widget",
		"price":      1000,
		"quantity":   2,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(2000), body["total"])
	assert.Equal(t, float64(2), body["item_count"])

	// Adding the same product merges the line
	rec = env.request(t, http.MethodPost, "/cart/items", token, map[string]any{
		"product_id": "p1",
		"name":       "Widget",
		"price":      1000,
		"quantity":   1,
	})
	body = decode(t, rec)
	assert.Equal(t, float64(3000), body["total"])
	assert.Len(t, body["items"], 1)

	// Update quantity
	rec = env.request(t, http.MethodPut, "/cart/items/p1", token, map[string]any{
		"quantity": 1,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(1000), body["total"])

	// Remove the item
	rec = env.request(t, http.MethodDelete, "/cart/items/p1", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, float64(0), body["total"])
}

func TestAPI_ClearCart(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	env.request(t, http.MethodPost, "/cart/items", token, map[string]any{
		"product_id": "p1", "price": 1000, "quantity": 1,
	})

	rec := env.request(t, http.MethodDelete, "/cart", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.request(t, http.MethodGet, "/cart", token, nil)
	body := decode(t, rec)
	assert.Equal(t, float64(0), body["total"])
}

func TestAPI_AddToCart_MissingProductID(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/cart/items", token, map[string]any{
		"price": 1000, "quantity": 1,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================
// Checkout Tests
// ============================================

func checkoutProducts() []map[string]any {
	return []map[string]any{
		{"id": "p1", "name": "Widget", "price": 1000, "quantity": 2},
	}
}

func TestAPI_CreateOrder(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount":   2000,
		"products": checkoutProducts(),
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "PP-123", body["id"])
	assert.Equal(t, "CREATED", body["status"])
	assert.NotEmpty(t, body["links"])

	// Session now in progress
	rec = env.request(t, http.MethodGet, "/api/paypal/session", token, nil)
	body = decode(t, rec)
	assert.Equal(t, true, body["in_progress"])
}

func TestAPI_CreateOrder_InvalidAmount(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount": 0,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CreateOrder_AmountMismatch(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount":   2500,
		"products": checkoutProducts(),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "amount does not match item total", body["error"])
}

func TestAPI_CreateOrder_Duplicate(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount": 2000, "products": checkoutProducts(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount": 2000, "products": checkoutProducts(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_CaptureOrder_FullFlow(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	// Fill the cart, create, capture
	env.request(t, http.MethodPost, "/cart/items", token, map[string]any{
		"product_id": "p1", "name": "Widget", "price": 1000, "quantity": 2,
	})

	rec := env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount": 2000, "products": checkoutProducts(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/paypal/capture_order", token, map[string]any{
		"order_id": "PP-123",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["orderId"])
	assert.Equal(t, "completed", body["status"])

	// Cart is cleared after completion
	rec = env.request(t, http.MethodGet, "/cart", token, nil)
	cartBody := decode(t, rec)
	assert.Equal(t, float64(0), cartBody["total"])

	// Order appears in history
	rec = env.request(t, http.MethodGet, "/orders", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var orders []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "PP-123", orders[0]["paypal_order_id"])
}

func TestAPI_CaptureOrder_StaleApprovalIgnored(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount": 2000, "products": checkoutProducts(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/paypal/capture_order", token, map[string]any{
		"order_id": "PP-STALE",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ignored", body["status"])
}

func TestAPI_CaptureOrder_NoPendingOrder(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/paypal/capture_order", token, map[string]any{
		"order_id": "PP-123",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_CaptureOrder_ClientErrorWindowClosed(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount": 2000, "products": checkoutProducts(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/paypal/capture_order", token, map[string]any{
		"order_id":     "PP-123",
		"client_error": map[string]string{"code": "window_closed"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["retry"])

	// Session is still alive for the retry
	rec = env.request(t, http.MethodGet, "/api/paypal/session", token, nil)
	body = decode(t, rec)
	assert.Equal(t, true, body["in_progress"])
}

func TestAPI_CaptureOrder_ClientErrorDeclined(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount": 2000, "products": checkoutProducts(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/paypal/capture_order", token, map[string]any{
		"order_id":     "PP-123",
		"client_error": map[string]string{"code": "instrument_declined", "details": "card declined"},
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPI_CaptureOrder_Timeout(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)
	env.paypal.CaptureErr = &paypal.Error{Kind: paypal.KindTimeout}

	rec := env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount": 2000, "products": checkoutProducts(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/paypal/capture_order", token, map[string]any{
		"order_id": "PP-123",
	})

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestAPI_CancelAndReset(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount": 2000, "products": checkoutProducts(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/paypal/cancel_order", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/paypal/session", token, nil)
	body := decode(t, rec)
	assert.Equal(t, false, body["in_progress"])

	// A fresh attempt works after cancel
	rec = env.request(t, http.MethodPost, "/api/paypal/create_order", token, map[string]any{
		"amount": 2000, "products": checkoutProducts(),
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/paypal/reset", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// ============================================
// Order Persistence and Listing Tests
// ============================================

func TestAPI_PersistOrder(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/orders", token, map[string]any{
		"amount":        2000,
		"products":      checkoutProducts(),
		"paypalOrderId": "PP-EXT-1",
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	orderID := body["orderId"].(string)
	assert.NotEmpty(t, orderID)

	// Re-delivery returns the same record
	rec = env.request(t, http.MethodPost, "/api/orders", token, map[string]any{
		"amount":        2000,
		"products":      checkoutProducts(),
		"paypalOrderId": "PP-EXT-1",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, orderID, decode(t, rec)["orderId"])
}

func TestAPI_PersistOrder_Validation(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodPost, "/api/orders", token, map[string]any{
		"amount": 0, "paypalOrderId": "PP-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(t, http.MethodPost, "/api/orders", token, map[string]any{
		"amount": 2000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetOrder_OwnerOnly(t *testing.T) {
	env := newAPITestEnv(t)
	owner := env.token(t, "guest-1", auth.RoleShopper)
	other := env.token(t, "guest-2", auth.RoleShopper)
	admin := env.token(t, "admin", auth.RoleAdmin)

	rec := env.request(t, http.MethodPost, "/api/orders", owner, map[string]any{
		"amount": 2000, "paypalOrderId": "PP-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decode(t, rec)["orderId"].(string)

	// Owner sees it
	rec = env.request(t, http.MethodGet, "/orders/"+orderID, owner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Another shopper does not
	rec = env.request(t, http.MethodGet, "/orders/"+orderID, other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin does
	rec = env.request(t, http.MethodGet, "/orders/"+orderID, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Unknown id
	rec = env.request(t, http.MethodGet, "/orders/nope", owner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_AdminOrders(t *testing.T) {
	env := newAPITestEnv(t)
	shopper := env.token(t, "guest-1", auth.RoleShopper)
	admin := env.token(t, "admin", auth.RoleAdmin)

	rec := env.request(t, http.MethodPost, "/api/orders", shopper, map[string]any{
		"amount": 2000, "paypalOrderId": "PP-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Shoppers are forbidden
	rec = env.request(t, http.MethodGet, "/admin/orders", shopper, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin sees every order
	rec = env.request(t, http.MethodGet, "/admin/orders", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var orders []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	assert.Len(t, orders, 1)
}

// ============================================
// Misc Tests
// ============================================

func TestAPI_Healthz(t *testing.T) {
	env := newAPITestEnv(t)

	rec := env.request(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	env := newAPITestEnv(t)
	token := env.token(t, "guest-1", auth.RoleShopper)

	rec := env.request(t, http.MethodGet, "/api/paypal/create_order", token, nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
