package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/metrics"
)

type MovementType string

const (
	MovementReceive     MovementType = "RECEIVE"
	MovementAdjust      MovementType = "ADJUST"
	MovementDamage      MovementType = "DAMAGE"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementSale        MovementType = "SALE"
	MovementReturn      MovementType = "RETURN"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementReceive, MovementAdjust, MovementDamage,
		MovementTransferIn, MovementTransferOut, MovementSale, MovementReturn:
		return true
	}
	return false
}

// Movement is one immutable audit row; never updated or deleted.
type Movement struct {
	ID               string       `json:"id"`
	ProductID        string       `json:"product_id"`
	VariantSKU       string       `json:"variant_sku,omitempty"`
	Type             MovementType `json:"type"`
	Quantity         int          `json:"quantity"` // signed delta
	PreviousQuantity int          `json:"previous_quantity"`
	NewQuantity      int          `json:"new_quantity"`
	Reason           string       `json:"reason"`
	Reference        string       `json:"reference,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

type MovementInput struct {
	ProductID  string       `json:"product_id"`
	VariantSKU string       `json:"variant_sku,omitempty"`
	Type       MovementType `json:"type"`
	Quantity   int          `json:"quantity"`
	Reason     string       `json:"reason"`
	Reference  string       `json:"reference,omitempty"`
}

// RecordMovement is the canonical mutation path for every stock change
// outside the checkout hot path: it reads the current on-hand quantity,
// rejects a delta that would go negative before anything is written, then
// persists the new quantity and appends exactly one audit row carrying the
// previous/new snapshot.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (*Movement, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("invalid movement type %q", in.Type)
	}
	if in.Quantity == 0 {
		return nil, fmt.Errorf("movement quantity must be non-zero")
	}

	var out *Movement
	err := s.ledger.InTx(ctx, func(tx Tx) error {
		c, err := tx.Counters(ctx, in.ProductID, in.VariantSKU)
		if err != nil {
			return err
		}
		next := c.OnHand + in.Quantity
		if next < 0 {
			return fmt.Errorf("%w: product=%s on_hand=%d delta=%d",
				ErrInsufficientStock, in.ProductID, c.OnHand, in.Quantity)
		}

		m := Movement{
			ProductID:        in.ProductID,
			VariantSKU:       in.VariantSKU,
			Type:             in.Type,
			Quantity:         in.Quantity,
			PreviousQuantity: c.OnHand,
			NewQuantity:      next,
			Reason:           in.Reason,
			Reference:        in.Reference,
			CreatedAt:        s.now(),
		}

		c.OnHand = next
		if err := s.write(ctx, tx, ItemQty{ProductID: in.ProductID, VariantSKU: in.VariantSKU}, c); err != nil {
			return err
		}
		if err := tx.AppendMovement(ctx, m); err != nil {
			return err
		}
		out = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.MovementsTotal.WithLabelValues(string(in.Type)).Inc()
	return out, nil
}
