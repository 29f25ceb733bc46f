package orders

import "time"

type Product struct {
	ID          string
	SKU         string
	Name        string
	PriceCents  int
	OnHand      int
	Reserved    int
	HasVariants bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Variant is a sub-item of a product with its own stock counters. The parent
// product of a variant carries the sum of its variants' counters.
type Variant struct {
	SKU       string
	ProductID string
	Name      string
	OnHand    int
	Reserved  int
}

type POSSyncStatus string

const (
	POSSyncPending POSSyncStatus = "PENDING"
	POSSyncSynced  POSSyncStatus = "SYNCED"
	POSSyncPartial POSSyncStatus = "PARTIAL_SYNC"
	POSSyncFailed  POSSyncStatus = "FAILED"
)

type ShippingStatus string

const (
	ShippingPending            ShippingStatus = "PENDING"
	ShippingReadyToShip        ShippingStatus = "READY_TO_SHIP"
	ShippingReadyForCollection ShippingStatus = "READY_FOR_COLLECTION"
	ShippingFailed             ShippingStatus = "FAILED"
)

type Order struct {
	ID             string
	ExternalID     string
	UserID         string
	Status         Status // see status.go
	TotalCents     int
	ShippingCents  int
	SelfCollect    bool
	Postcode       string
	WeightGrams    int
	PurchaseID     string
	StockDeducted  bool
	POSSyncStatus  POSSyncStatus
	POSReceiptID   string
	ShippingStatus ShippingStatus
	ShipmentKey    string
	TrackingNo     string
	TrackingSynced bool
	Items          []Item
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Item struct {
	OrderID    string
	ProductID  string
	VariantSKU string // empty when the line targets the product directly
	SKU        string
	Name       string
	Qty        int
	PriceCents int
}
