package shipping

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/metrics"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/orders"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/retry"
)

// Orders is the slice of the order store the tracking sync needs.
type Orders interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ApplyFulfillment(ctx context.Context, orderID string, p orders.FulfillmentPatch) error
	ListForTrackingSync(ctx context.Context) ([]*orders.Order, error)
}

// DefaultTrackingPolicy: an immediate probe, then retries after 3s, 3s, 5s.
func DefaultTrackingPolicy() retry.Policy {
	return retry.Fixed(0, 3*time.Second, 3*time.Second, 5*time.Second)
}

// Tracking resolves courier tracking numbers after shipment staging.
type Tracking struct {
	API        API
	Orders     Orders
	Policy     retry.Policy
	BatchDelay time.Duration
	// Sleep is injectable for tests; nil means a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

type CheckoutResult struct {
	TrackingNo string `json:"tracking_no,omitempty"`
	// Pending means the checkout succeeded but the carrier has not assigned a
	// number yet; this is not a failure.
	Pending bool `json:"pending"`
}

// Checkout finalizes a staged shipment at the carrier and tries to obtain the
// tracking number: first from the checkout response itself, then by polling
// the status endpoint through the configured policy.
func (t *Tracking) Checkout(ctx context.Context, shipmentKey string) (CheckoutResult, error) {
	resp, err := t.API.Checkout(ctx, shipmentKey)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("checkout %s: %w", shipmentKey, err)
	}
	if no := resp.Tracking(); no != "" {
		return CheckoutResult{TrackingNo: no}, nil
	}

	policy := t.Policy
	if len(policy.Delays) == 0 {
		policy = DefaultTrackingPolicy()
	}
	policy.Sleep = t.Sleep

	var tracking string
	err = policy.Do(ctx, func(int) (bool, error) {
		info, err := t.API.GetShipment(ctx, shipmentKey)
		if err != nil {
			return false, err
		}
		if no := info.Tracking(); no != "" {
			tracking = no
			return true, nil
		}
		return false, nil
	})
	if ctx.Err() != nil {
		return CheckoutResult{}, ctx.Err()
	}
	if tracking != "" {
		return CheckoutResult{TrackingNo: tracking}, nil
	}
	if err != nil {
		log.Warn().Err(err).Str("shipment_key", shipmentKey).Msg("tracking poll errored, leaving pending")
	}
	// checkout succeeded, tracking pending
	return CheckoutResult{Pending: true}, nil
}

type FetchResult struct {
	Status     string `json:"status"`
	CheckedOut bool   `json:"checked_out"`
	TrackingNo string `json:"tracking_no,omitempty"`
}

// Fetch is a single status poll.
func (t *Tracking) Fetch(ctx context.Context, shipmentKey string) (FetchResult, error) {
	info, err := t.API.GetShipment(ctx, shipmentKey)
	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{
		Status:     info.Status,
		CheckedOut: info.CheckedOut(),
		TrackingNo: info.Tracking(),
	}, nil
}

// SyncOrder resolves one order's tracking number and, when found, stores it
// and shifts the order to AWAITING_PICKUP.
func (t *Tracking) SyncOrder(ctx context.Context, orderID string) (FetchResult, error) {
	o, err := t.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return FetchResult{}, err
	}
	if o.TrackingSynced {
		return FetchResult{CheckedOut: true, TrackingNo: o.TrackingNo}, nil
	}
	if o.ShipmentKey == "" {
		return FetchResult{}, fmt.Errorf("order %s has no shipment", orderID)
	}

	fr, err := t.Fetch(ctx, o.ShipmentKey)
	if err != nil {
		metrics.TrackingSyncTotal.WithLabelValues("error").Inc()
		return FetchResult{}, err
	}
	if fr.TrackingNo == "" {
		metrics.TrackingSyncTotal.WithLabelValues("pending").Inc()
		return fr, nil
	}

	synced := true
	status := orders.StatusAwaitingPickup
	patch := orders.FulfillmentPatch{
		TrackingNo:     &fr.TrackingNo,
		TrackingSynced: &synced,
	}
	if o.Status == orders.StatusReadyToShip {
		patch.Status = &status
	}
	if err := t.Orders.ApplyFulfillment(ctx, orderID, patch); err != nil {
		metrics.TrackingSyncTotal.WithLabelValues("error").Inc()
		return fr, err
	}
	metrics.TrackingSyncTotal.WithLabelValues("resolved").Inc()
	log.Info().Str("order_id", orderID).Str("tracking_no", fr.TrackingNo).Msg("tracking resolved")
	return fr, nil
}

type BatchReport struct {
	Scanned  int `json:"scanned"`
	Resolved int `json:"resolved"`
	Pending  int `json:"pending"`
	Failed   int `json:"failed"`
}

// BatchSync walks every staged order still missing a tracking number, with a
// fixed delay between carrier calls. One order's failure never aborts the
// batch.
func (t *Tracking) BatchSync(ctx context.Context) (BatchReport, error) {
	list, err := t.Orders.ListForTrackingSync(ctx)
	if err != nil {
		return BatchReport{}, err
	}

	sleep := t.Sleep
	if sleep == nil {
		sleep = func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		}
	}

	rep := BatchReport{Scanned: len(list)}
	for i, o := range list {
		if i > 0 && t.BatchDelay > 0 {
			if err := sleep(ctx, t.BatchDelay); err != nil {
				return rep, err
			}
		}
		fr, err := t.SyncOrder(ctx, o.ID)
		switch {
		case err != nil:
			log.Error().Err(err).Str("order_id", o.ID).Msg("batch tracking sync failed for order")
			rep.Failed++
		case fr.TrackingNo != "":
			rep.Resolved++
		default:
			rep.Pending++
		}
	}
	return rep, nil
}
