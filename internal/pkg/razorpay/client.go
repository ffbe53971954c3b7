package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iamhvsharma/razorpay-webhook/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.razorpay.com/v1"

// Client is a minimal Razorpay REST client covering the order operations this
// service needs: creating orders with the customer id stamped into notes, and
// fetching an order when a webhook arrives without one.
type Client struct {
	KeyID      string
	KeySecret  string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a client from environment configuration.
func NewClientFromEnv() *Client {
	return &Client{
		KeyID:      strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_ID", "")),
		KeySecret:  strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_SECRET", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("RAZORPAY_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Order is the subset of the Razorpay order entity this service reads.
type Order struct {
	ID         string `json:"id"`
	Entity     string `json:"entity"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Notes      Notes  `json:"notes"`
	CreatedAt  int64  `json:"created_at"`
}

// CreateOrderRequest is the body for POST /orders. Amount is in paise.
type CreateOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Notes    Notes  `json:"notes,omitempty"`
}

// CreateOrder creates a payment order.
func (c *Client) CreateOrder(ctx context.Context, in CreateOrderRequest) (*Order, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/orders", bytes.NewReader(body))
}

// FetchOrder retrieves an order by id.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, errors.New("order id is required")
	}
	return c.do(ctx, http.MethodGet, "/orders/"+id, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*Order, error) {
	if c.KeyID == "" || c.KeySecret == "" {
		return nil, errors.New("RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET are not configured")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("razorpay %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(respBody))
	}

	var out Order
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("razorpay %s %s: decode response: %w", method, path, err)
	}
	return &out, nil
}
