package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Gateway is the payment provider surface: create a purchase for a checkout
// and query its state afterwards.
type Gateway interface {
	CreatePurchase(ctx context.Context, req PurchaseRequest) (Purchase, error)
	GetPurchase(ctx context.Context, purchaseID string) (Purchase, error)
}

// StatusPaid is the gateway's settled state mapped to local PAID.
const StatusPaid = "paid"

type PurchaseRequest struct {
	Reference   string `json:"reference"` // order id
	AmountCents int    `json:"amount_cents"`
	Email       string `json:"email,omitempty"`
}

type Purchase struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreatePurchase(ctx context.Context, req PurchaseRequest) (Purchase, error) {
	var out Purchase
	err := c.do(ctx, http.MethodPost, "/purchases", req, &out)
	return out, err
}

func (c *Client) GetPurchase(ctx context.Context, purchaseID string) (Purchase, error) {
	var out Purchase
	err := c.do(ctx, http.MethodGet, "/purchases/"+purchaseID, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.APIKey == "" {
		return fmt.Errorf("gateway: missing API key")
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway: %s %s: status %d: %s", method, path, resp.StatusCode, b)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
