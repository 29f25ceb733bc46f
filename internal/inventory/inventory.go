package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ItemQty addresses one stock counter. A non-empty VariantSKU targets the
// sub-item; the parent product's counters are then kept as the sum over its
// variants.
type ItemQty struct {
	ProductID  string `json:"product_id"`
	VariantSKU string `json:"variant_sku,omitempty"`
	Qty        int    `json:"qty"`
}

type Counters struct {
	OnHand   int
	Reserved int
}

// Available is what a new reservation may still claim.
func (c Counters) Available() int { return c.OnHand - c.Reserved }

type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationConsumed ReservationStatus = "CONSUMED"
)

// Reservation is the explicit hold an unconfirmed order has on stock.
type Reservation struct {
	OrderID   string
	Items     []ItemQty
	Status    ReservationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

var (
	ErrUnknownProduct    = errors.New("unknown product")
	ErrInsufficientStock = errors.New("insufficient stock")

	// errReservationExists aborts a reservation transaction that lost the
	// insert race against a concurrent call for the same order. Reserve flags
	// it back into the idempotent no-op path, rolling the loser's counter
	// writes back.
	errReservationExists = errors.New("reservation already exists")
)

type Shortage struct {
	ProductID  string `json:"product_id"`
	VariantSKU string `json:"variant_sku,omitempty"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
}

// ShortageError reports every short item of an all-or-nothing reservation.
type ShortageError struct {
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Shortages))
}

// Ledger is the transactional store under the stock counters. All reads
// inside InTx lock their rows, so concurrent batches on the same product
// serialize; a loser observes the winner's writes and aborts on shortage.
type Ledger interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	ExpiredReservations(ctx context.Context, cutoff time.Time) ([]Reservation, error)
}

type Tx interface {
	Counters(ctx context.Context, productID, variantSKU string) (Counters, error)
	SetCounters(ctx context.Context, productID, variantSKU string, c Counters) error
	// RecomputeParent refreshes a variant product's counters as the sum over
	// its variants.
	RecomputeParent(ctx context.Context, productID string) error
	InsertReservation(ctx context.Context, r Reservation) error
	ActiveReservation(ctx context.Context, orderID string) (*Reservation, error)
	SetReservationStatus(ctx context.Context, orderID string, s ReservationStatus) error
	AppendMovement(ctx context.Context, m Movement) error
}
