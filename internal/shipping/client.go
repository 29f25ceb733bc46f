package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// API is the courier surface: price check, shipment staging, checkout and
// status polling. Tracking numbers are assigned asynchronously after
// checkout, not at creation.
type API interface {
	CheckPrice(ctx context.Context, postcode string, weightGrams int) ([]Rate, error)
	CreateShipment(ctx context.Context, req ShipmentRequest) (ShipmentResult, error)
	Checkout(ctx context.Context, shipmentKey string) (CheckoutResponse, error)
	GetShipment(ctx context.Context, shipmentKey string) (ShipmentInfo, error)
}

type Rate struct {
	Courier    string `json:"courier"`
	ServiceID  string `json:"service_id"`
	PriceCents int    `json:"price_cents"`
}

type ShipmentRequest struct {
	Reference    string `json:"reference"` // idempotency key, derived from order id
	ReceiverName string `json:"receiver_name"`
	Postcode     string `json:"postcode"`
	WeightGrams  int    `json:"weight_grams"`
}

type ShipmentResult struct {
	ShipmentKey string `json:"shipment_key"`
	TrackingNo  string `json:"tracking_no,omitempty"`
}

// CheckoutResponse covers the two shapes the carrier is known to answer
// with: a flat tracking_no, or a result list of parcels.
type CheckoutResponse struct {
	TrackingNo string `json:"tracking_no"`
	Result     []struct {
		Parcels []struct {
			ParcelNo string `json:"parcel_no"`
		} `json:"parcel"`
	} `json:"result"`
}

// Tracking extracts the number from whichever shape is populated.
func (r CheckoutResponse) Tracking() string {
	if r.TrackingNo != "" {
		return r.TrackingNo
	}
	for _, res := range r.Result {
		for _, p := range res.Parcels {
			if p.ParcelNo != "" {
				return p.ParcelNo
			}
		}
	}
	return ""
}

// ShipmentInfo is a status poll. The tracking number has appeared under
// several field names over time, so all of them are read.
type ShipmentInfo struct {
	Status       string `json:"status"`
	TrackingNo   string `json:"tracking_no"`
	AWB          string `json:"awb"`
	ParcelNumber string `json:"parcel_number"`
}

func (i ShipmentInfo) Tracking() string {
	for _, v := range []string{i.TrackingNo, i.AWB, i.ParcelNumber} {
		if v != "" {
			return v
		}
	}
	return ""
}

// preDispatchStatuses are the carrier states meaning the shipment was staged
// but never checked out.
var preDispatchStatuses = map[string]bool{
	"unpaid":          true,
	"drafted":         true,
	"pending payment": true,
}

// CheckedOut distinguishes "not checked out yet" from "checked out but the
// tracking field is still missing".
func (i ShipmentInfo) CheckedOut() bool {
	return !preDispatchStatuses[strings.ToLower(i.Status)]
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
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) CheckPrice(ctx context.Context, postcode string, weightGrams int) ([]Rate, error) {
	body := map[string]any{"postcode": postcode, "weight_grams": weightGrams}
	var out struct {
		Rates []Rate `json:"rates"`
	}
	if err := c.do(ctx, http.MethodPost, "/rates", body, &out); err != nil {
		return nil, err
	}
	return out.Rates, nil
}

func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (ShipmentResult, error) {
	var out ShipmentResult
	err := c.do(ctx, http.MethodPost, "/shipments", req, &out)
	return out, err
}

func (c *Client) Checkout(ctx context.Context, shipmentKey string) (CheckoutResponse, error) {
	var out CheckoutResponse
	err := c.do(ctx, http.MethodPost, "/shipments/"+shipmentKey+"/checkout", nil, &out)
	return out, err
}

func (c *Client) GetShipment(ctx context.Context, shipmentKey string) (ShipmentInfo, error) {
	var out ShipmentInfo
	err := c.do(ctx, http.MethodGet, "/shipments/"+shipmentKey, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.APIKey == "" {
		return fmt.Errorf("carrier: missing API key")
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
		return fmt.Errorf("carrier: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("carrier: %s %s: status %d: %s", method, path, resp.StatusCode, b)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
