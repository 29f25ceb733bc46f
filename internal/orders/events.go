package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventOrderPaid        = "OrderPaid"
	EventOrderFulfilled   = "OrderFulfilled"
	EventOrderReadyToShip = "OrderReadyToShip"
	EventOrderShipped     = "OrderShipped"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "store-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload types per event ----

type OrderCreatedPayload struct {
	OrderID    string `json:"order_id"`
	ExternalID string `json:"external_id"`
	UserID     string `json:"user_id"`
	TotalCents int    `json:"total_cents"`
}

type OrderPaidPayload struct {
	OrderID     string `json:"order_id"`
	PurchaseID  string `json:"purchase_id"`
	AmountCents int    `json:"amount_cents"`
}

type OrderFulfilledPayload struct {
	OrderID        string         `json:"order_id"`
	StockDeducted  bool           `json:"stock_deducted"`
	POSSyncStatus  POSSyncStatus  `json:"pos_sync_status"`
	ShippingStatus ShippingStatus `json:"shipping_status"`
}

type OrderReadyToShipPayload struct {
	OrderID     string `json:"order_id"`
	ShipmentKey string `json:"shipment_key"`
}

type OrderShippedPayload struct {
	OrderID    string `json:"order_id"`
	TrackingNo string `json:"tracking_no"`
}
