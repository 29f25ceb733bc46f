package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/metrics"
)

// Service owns the stock counters. Every mutation in the system goes through
// Reserve/Release/Deduct or RecordMovement; nothing else writes counters.
type Service struct {
	ledger Ledger
	now    func() time.Time
}

func NewService(l Ledger) *Service {
	return &Service{ledger: l, now: time.Now}
}

// Reserve places an all-or-nothing hold for an order. Within one transaction
// every affected counter is locked and read before any write, so the
// validation cannot be invalidated by the batch's own writes. Any short item
// aborts the whole batch with a *ShortageError listing each one. Re-reserving
// an order that already holds an active reservation is a no-op.
func (s *Service) Reserve(ctx context.Context, orderID string, items []ItemQty, ttl time.Duration) error {
	err := s.ledger.InTx(ctx, func(tx Tx) error {
		existing, err := tx.ActiveReservation(ctx, orderID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		// read phase
		read := make([]Counters, len(items))
		var shortages []Shortage
		for i, it := range items {
			c, err := tx.Counters(ctx, it.ProductID, it.VariantSKU)
			if err != nil {
				return err
			}
			read[i] = c
			if c.Available() < it.Qty {
				shortages = append(shortages, Shortage{
					ProductID:  it.ProductID,
					VariantSKU: it.VariantSKU,
					Requested:  it.Qty,
					Available:  c.Available(),
				})
			}
		}
		if len(shortages) > 0 {
			return &ShortageError{Shortages: shortages}
		}

		// write phase
		for i, it := range items {
			c := read[i]
			c.Reserved += it.Qty
			if err := s.write(ctx, tx, it, c); err != nil {
				return err
			}
		}
		return tx.InsertReservation(ctx, Reservation{
			OrderID:   orderID,
			Items:     items,
			Status:    ReservationReserved,
			ExpiresAt: s.now().Add(ttl),
			CreatedAt: s.now(),
		})
	})
	if errors.Is(err, errReservationExists) {
		// lost the insert race to a concurrent call for this order; the
		// winner's hold stands and this tx rolled back
		err = nil
	}
	switch {
	case err == nil:
		metrics.ReservationsTotal.WithLabelValues("ok").Inc()
	case isShortage(err):
		metrics.ReservationsTotal.WithLabelValues("shortage").Inc()
	default:
		metrics.ReservationsTotal.WithLabelValues("error").Inc()
	}
	return err
}

// Release gives an order's hold back. Counters floor at 0 and a missing
// active reservation is a no-op, so double release is safe.
func (s *Service) Release(ctx context.Context, orderID string) error {
	return s.ledger.InTx(ctx, func(tx Tx) error {
		res, err := tx.ActiveReservation(ctx, orderID)
		if err != nil {
			return err
		}
		if res == nil {
			return nil
		}
		for _, it := range res.Items {
			c, err := tx.Counters(ctx, it.ProductID, it.VariantSKU)
			if err != nil {
				return err
			}
			c.Reserved = floorSub(c.Reserved, it.Qty)
			if err := s.write(ctx, tx, it, c); err != nil {
				return err
			}
		}
		return tx.SetReservationStatus(ctx, orderID, ReservationReleased)
	})
}

// Deduct converts an order's hold into a permanent reduction after payment:
// on_hand and reserved both drop by the held quantity, floored at 0, and one
// SALE movement per item lands in the audit ledger. A consumed (or absent)
// reservation makes the call a no-op, so a re-run pipeline cannot deduct twice.
func (s *Service) Deduct(ctx context.Context, orderID string) error {
	return s.ledger.InTx(ctx, func(tx Tx) error {
		res, err := tx.ActiveReservation(ctx, orderID)
		if err != nil {
			return err
		}
		if res == nil {
			log.Debug().Str("order_id", orderID).Msg("deduct: no active reservation, skipping")
			return nil
		}
		for _, it := range res.Items {
			c, err := tx.Counters(ctx, it.ProductID, it.VariantSKU)
			if err != nil {
				return err
			}
			prev := c.OnHand
			c.OnHand = floorSub(c.OnHand, it.Qty)
			c.Reserved = floorSub(c.Reserved, it.Qty)
			if err := s.write(ctx, tx, it, c); err != nil {
				return err
			}
			if err := tx.AppendMovement(ctx, Movement{
				ProductID:        it.ProductID,
				VariantSKU:       it.VariantSKU,
				Type:             MovementSale,
				Quantity:         -it.Qty,
				PreviousQuantity: prev,
				NewQuantity:      c.OnHand,
				Reason:           "order sale",
				Reference:        orderID,
				CreatedAt:        s.now(),
			}); err != nil {
				return err
			}
		}
		return tx.SetReservationStatus(ctx, orderID, ReservationConsumed)
	})
}

func (s *Service) write(ctx context.Context, tx Tx, it ItemQty, c Counters) error {
	if err := tx.SetCounters(ctx, it.ProductID, it.VariantSKU, c); err != nil {
		return err
	}
	if it.VariantSKU != "" {
		return tx.RecomputeParent(ctx, it.ProductID)
	}
	return nil
}

func floorSub(a, b int) int {
	if a < b {
		return 0
	}
	return a - b
}

func isShortage(err error) bool {
	var se *ShortageError
	return errors.As(err, &se)
}
