package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
	liveBaseURL    = "https://api-m.paypal.com"

	// tokenExpiryMargin is subtracted from the upstream expiry so a
	// token is never used right at its deadline.
	tokenExpiryMargin = 60 * time.Second
)

// Config holds PayPal REST credentials and environment selection.
type Config struct {
	ClientID     string
	ClientSecret string
	Environment  string // "sandbox" or "live"
	BaseURL      string // overrides Environment when set (tests)
}

// ConfigFromEnv reads PAYPAL_CLIENT_ID (falling back to the historical
// NEXT_PUBLIC_PAYPAL_CLIENT_ID name), PAYPAL_CLIENT_SECRET and
// PAYPAL_ENV.
func ConfigFromEnv() Config {
	clientID := os.Getenv("PAYPAL_CLIENT_ID")
	if clientID == "" {
		clientID = os.Getenv("NEXT_PUBLIC_PAYPAL_CLIENT_ID")
	}
	return Config{
		ClientID:     clientID,
		ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
		Environment:  os.Getenv("PAYPAL_ENV"),
	}
}

// Client talks to the PayPal Orders v2 REST API. It caches the OAuth2
// client-credentials token until shortly before expiry.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient validates credentials up front: a missing client id or
// secret is a configuration error surfaced before any network call.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, &Error{
			Kind:   KindConfiguration,
			Detail: "PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET must be set (see PAYPAL_ENV for sandbox/live selection)",
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Environment == "live" {
			baseURL = liveBaseURL
		} else {
			baseURL = sandboxBaseURL
		}
	}

	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Link is a HATEOAS link returned by the Orders API; the "approve" rel
// is the buyer-facing approval URL.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// OrderResult is the outcome of order creation.
type OrderResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []Link `json:"links"`
}

// CaptureResult is the outcome of a capture call. Details retains the
// raw response body for persistence alongside the order record.
type CaptureResult struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Details json.RawMessage `json:"details"`
}

// PurchaseItem is one line of the purchase unit sent to PayPal.
// Price is in minor units.
type PurchaseItem struct {
	Name     string
	Price    int64
	Quantity int
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached access token or fetches a fresh one through
// the client-credentials grant.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &Error{Kind: KindNetwork, Err: err}
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindUpstream, Status: resp.StatusCode, Detail: string(body)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", &Error{Kind: KindUpstream, Status: resp.StatusCode, Detail: "malformed token response", Err: err}
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpiryMargin)
	c.mu.Unlock()

	return tok.AccessToken, nil
}

// CreateOrder creates a PayPal order with intent=CAPTURE. When items
// are supplied the charged value is their computed total; otherwise the
// raw amount is charged. Amounts are minor units of the currency.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency string, items []PurchaseItem) (*OrderResult, error) {
	if amount <= 0 {
		return nil, &Error{Kind: KindConfiguration, Detail: "amount must be positive"}
	}
	if currency == "" {
		currency = "USD"
	}

	total := amount
	if len(items) > 0 {
		total = 0
		for _, it := range items {
			total += it.Price * int64(it.Quantity)
		}
	}

	unit := map[string]any{
		"amount": map[string]any{
			"currency_code": currency,
			"value":         FormatAmount(total),
		},
	}
	if len(items) > 0 {
		unit["amount"].(map[string]any)["breakdown"] = map[string]any{
			"item_total": map[string]any{
				"currency_code": currency,
				"value":         FormatAmount(total),
			},
		}
		var lines []map[string]any
		for _, it := range items {
			name := it.Name
			if name == "" {
				name = "Item"
			}
			lines = append(lines, map[string]any{
				"name":     name,
				"quantity": fmt.Sprintf("%d", it.Quantity),
				"unit_amount": map[string]any{
					"currency_code": currency,
					"value":         FormatAmount(it.Price),
				},
			})
		}
		unit["items"] = lines
	}

	payload := map[string]any{
		"intent":         "CAPTURE",
		"purchase_units": []any{unit},
	}

	var result OrderResult
	if err := c.post(ctx, "/v2/checkout/orders", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CaptureOrder finalizes and charges a previously approved order.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	if orderID == "" {
		return nil, &Error{Kind: KindConfiguration, Detail: "order id is required"}
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/checkout/orders/"+orderID+"/capture", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &Error{Kind: KindUpstream, Status: resp.StatusCode, Detail: string(body)}
	}

	var parsed struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &Error{Kind: KindUpstream, Status: resp.StatusCode, Detail: "malformed capture response", Err: err}
	}

	return &CaptureResult{ID: parsed.ID, Status: parsed.Status, Details: body}, nil
}

// post sends an authorized JSON request and decodes the response.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &Error{Kind: KindUpstream, Status: resp.StatusCode, Detail: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &Error{Kind: KindUpstream, Status: resp.StatusCode, Detail: "malformed response", Err: err}
	}
	return nil
}

// FormatAmount renders minor units as the decimal string PayPal
// expects, e.g. 1050 -> "10.50".
func FormatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// MaskSecret shortens a credential for logging.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", 4)
}
