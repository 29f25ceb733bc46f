package inventory

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// OrderExpirer flips an order that lost its hold to EXPIRED.
type OrderExpirer interface {
	MarkExpired(ctx context.Context, orderID string) error
}

// Sweeper releases reservations whose hold outlived its TTL. It runs on
// demand (operator action or the sweeper job), not as a background process.
type Sweeper struct {
	Inventory *Service
	Orders    OrderExpirer
	Now       func() time.Time
}

type SweepReport struct {
	Scanned  int `json:"scanned"`
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// Sweep releases every reservation past its expires_at and expires the owning
// order. One reservation's failure is logged and skipped; the sweep continues.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	expired, err := s.Inventory.ledger.ExpiredReservations(ctx, now())
	if err != nil {
		return SweepReport{}, err
	}

	rep := SweepReport{Scanned: len(expired)}
	for _, r := range expired {
		if err := s.Inventory.Release(ctx, r.OrderID); err != nil {
			log.Error().Err(err).Str("order_id", r.OrderID).Msg("sweep: release failed")
			rep.Failed++
			continue
		}
		if err := s.Orders.MarkExpired(ctx, r.OrderID); err != nil {
			log.Error().Err(err).Str("order_id", r.OrderID).Msg("sweep: expire order failed")
			rep.Failed++
			continue
		}
		rep.Released++
	}
	return rep, nil
}
