package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// API is the remote point-of-sale surface the store depends on.
type API interface {
	ListCatalog(ctx context.Context) ([]CatalogItem, error)
	CreateReceipt(ctx context.Context, r Receipt) (receiptID string, err error)
	AdjustInventory(ctx context.Context, variantID string, delta int) error
}

type CatalogItem struct {
	SKU       string `json:"sku"`
	VariantID string `json:"variant_id"`
}

type ReceiptLine struct {
	VariantID  string `json:"variant_id,omitempty"`
	Name       string `json:"name"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type Receipt struct {
	Reference  string        `json:"reference"` // idempotency key, derived from order id
	Lines      []ReceiptLine `json:"lines"`
	TotalCents int           `json:"total_cents"`
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

func (c *Client) ListCatalog(ctx context.Context) ([]CatalogItem, error) {
	var out struct {
		Items []CatalogItem `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/catalog", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) CreateReceipt(ctx context.Context, r Receipt) (string, error) {
	var out struct {
		ReceiptID string `json:"receipt_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/receipts", r.Reference, r, &out); err != nil {
		return "", err
	}
	return out.ReceiptID, nil
}

func (c *Client) AdjustInventory(ctx context.Context, variantID string, delta int) error {
	body := map[string]any{"variant_id": variantID, "delta": delta}
	return c.do(ctx, http.MethodPost, "/inventory/adjust", "", body, nil)
}

func (c *Client) do(ctx context.Context, method, path, idemKey string, in, out any) error {
	if c.APIKey == "" {
		return fmt.Errorf("pos: missing API key")
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
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("pos: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pos: %s %s: status %d: %s", method, path, resp.StatusCode, b)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
