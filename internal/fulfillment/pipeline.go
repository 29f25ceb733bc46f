package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/shahruladnn-prog/rudark-web-sub000/internal/kafka"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/metrics"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/orders"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/pos"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/result"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/shipping"
)

type Inventory interface {
	Deduct(ctx context.Context, orderID string) error
}

type Orders interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ApplyFulfillment(ctx context.Context, orderID string, p orders.FulfillmentPatch) error
}

type POS interface {
	SubmitReceipt(ctx context.Context, reference string, lines []pos.Line, shippingCents int) (pos.ReceiptOutcome, error)
	DeductInventory(ctx context.Context, lines []pos.Line) (result.Batch, error)
}

type Carrier interface {
	CreateShipment(ctx context.Context, req shipping.ShipmentRequest) (shipping.ShipmentResult, error)
}

type TrackingCheckout interface {
	Checkout(ctx context.Context, shipmentKey string) (shipping.CheckoutResult, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Pipeline sequences stock deduction, POS sync and shipment creation once
// payment is confirmed. Stages are best-effort and isolated: a captured
// payment is never blocked by a downstream sync failure, so each stage's
// failure is recorded on the order and the next stage still runs.
type Pipeline struct {
	Inventory Inventory
	Orders    Orders
	POS       POS
	Carrier   Carrier
	Tracking  TrackingCheckout

	// Producer publishes to the fulfilled topic, ReadyToShip to the
	// ready-to-ship topic consumed by the tracker worker. Nil disables.
	Producer    Publisher
	ReadyToShip Publisher
	ServiceName string
}

// Report carries every per-stage outcome of one run. The pipeline's error
// return is nil once all stages ran; callers inspect the report (or the
// order's flags) for true health.
type Report struct {
	OrderID        string                `json:"order_id"`
	StockDeducted  bool                  `json:"stock_deducted"`
	POSSyncStatus  orders.POSSyncStatus  `json:"pos_sync_status"`
	POSReceiptID   string                `json:"pos_receipt_id,omitempty"`
	InventorySync  result.Batch          `json:"inventory_sync"`
	ShippingStatus orders.ShippingStatus `json:"shipping_status"`
	ShipmentKey    string                `json:"shipment_key,omitempty"`
	TrackingNo     string                `json:"tracking_no,omitempty"`
	Errors         []string              `json:"errors,omitempty"`
}

// ProcessSuccessfulOrder runs the fulfillment pipeline for a paid order. It
// is re-runnable for manual recovery: stages whose done marker is already set
// (stock_deducted, pos_sync_status=SYNCED, shipment_key) are skipped instead
// of repeating their remote side effects.
func (p *Pipeline) ProcessSuccessfulOrder(ctx context.Context, orderID string) (Report, error) {
	o, err := p.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return Report{}, err
	}
	switch o.Status {
	case orders.StatusPending:
		return Report{}, fmt.Errorf("order %s not paid yet", orderID)
	case orders.StatusCancelled, orders.StatusRefunded, orders.StatusExpired:
		return Report{}, fmt.Errorf("order %s is %s", orderID, o.Status)
	}

	rep := Report{
		OrderID:        orderID,
		StockDeducted:  o.StockDeducted,
		POSSyncStatus:  o.POSSyncStatus,
		POSReceiptID:   o.POSReceiptID,
		ShippingStatus: o.ShippingStatus,
		ShipmentKey:    o.ShipmentKey,
		TrackingNo:     o.TrackingNo,
	}
	var patch orders.FulfillmentPatch

	p.deductStage(ctx, o, &rep, &patch)
	lines := toLines(o.Items)
	p.receiptStage(ctx, o, lines, &rep, &patch)
	p.inventoryStage(ctx, o, lines, &rep, &patch)
	trackingResolved := p.shipmentStage(ctx, o, &rep, &patch)

	// status advances only from the pre-shipping states; a re-run never
	// drags a further-along order backwards
	if o.Status == orders.StatusPaid || o.Status == orders.StatusProcessing {
		status := orders.StatusProcessing
		if rep.ShippingStatus == orders.ShippingReadyToShip {
			status = orders.StatusReadyToShip
		}
		if trackingResolved {
			status = orders.StatusAwaitingPickup
		}
		if status != o.Status {
			patch.Status = &status
		}
	}

	if err := p.Orders.ApplyFulfillment(ctx, orderID, patch); err != nil {
		return rep, fmt.Errorf("persist fulfillment: %w", err)
	}

	p.publishFulfilled(rep)
	if rep.ShippingStatus == orders.ShippingReadyToShip && !trackingResolved {
		p.publishReadyToShip(rep)
	}
	return rep, nil
}

// deductStage converts the reservation into a permanent deduction. Failure is
// logged but never aborts: payment has already been captured.
func (p *Pipeline) deductStage(ctx context.Context, o *orders.Order, rep *Report, patch *orders.FulfillmentPatch) {
	if o.StockDeducted {
		return
	}
	if err := p.Inventory.Deduct(ctx, o.ID); err != nil {
		metrics.StageFailuresTotal.WithLabelValues("deduct").Inc()
		log.Error().Err(err).Str("order_id", o.ID).Msg("fulfillment: stock deduction failed")
		rep.Errors = append(rep.Errors, "deduct: "+err.Error())
		return
	}
	rep.StockDeducted = true
	t := true
	patch.StockDeducted = &t
}

func (p *Pipeline) receiptStage(ctx context.Context, o *orders.Order, lines []pos.Line, rep *Report, patch *orders.FulfillmentPatch) {
	if o.POSSyncStatus == orders.POSSyncSynced {
		return
	}
	outcome, err := p.POS.SubmitReceipt(ctx, "receipt-"+o.ID, lines, o.ShippingCents)
	if err != nil {
		metrics.StageFailuresTotal.WithLabelValues("receipt").Inc()
		log.Error().Err(err).Str("order_id", o.ID).Msg("fulfillment: receipt submission failed")
		rep.Errors = append(rep.Errors, "receipt: "+err.Error())
		rep.POSSyncStatus = orders.POSSyncFailed
		patch.POSSyncStatus = &rep.POSSyncStatus
		return
	}
	rep.POSReceiptID = outcome.ReceiptID
	patch.POSReceiptID = &outcome.ReceiptID
	rep.POSSyncStatus = orders.POSSyncSynced
	if outcome.Partial {
		rep.POSSyncStatus = orders.POSSyncPartial
	}
	patch.POSSyncStatus = &rep.POSSyncStatus
}

func (p *Pipeline) inventoryStage(ctx context.Context, o *orders.Order, lines []pos.Line, rep *Report, patch *orders.FulfillmentPatch) {
	if o.POSSyncStatus == orders.POSSyncSynced {
		return
	}
	batch, err := p.POS.DeductInventory(ctx, lines)
	if err != nil {
		metrics.StageFailuresTotal.WithLabelValues("inventory_sync").Inc()
		log.Error().Err(err).Str("order_id", o.ID).Msg("fulfillment: remote inventory deduction failed")
		rep.Errors = append(rep.Errors, "inventory_sync: "+err.Error())
		// a persisted SYNCED would make a reprocess skip this stage
		if rep.POSSyncStatus == orders.POSSyncSynced {
			rep.POSSyncStatus = orders.POSSyncPartial
			patch.POSSyncStatus = &rep.POSSyncStatus
		}
		return
	}
	rep.InventorySync = batch
	if !batch.AllSucceeded() && rep.POSSyncStatus == orders.POSSyncSynced {
		rep.POSSyncStatus = orders.POSSyncPartial
		patch.POSSyncStatus = &rep.POSSyncStatus
	}
}

// shipmentStage stages a courier shipment (or marks a self-collection order
// ready) and attempts checkout to resolve tracking early. Returns whether a
// tracking number was obtained in this run.
func (p *Pipeline) shipmentStage(ctx context.Context, o *orders.Order, rep *Report, patch *orders.FulfillmentPatch) bool {
	if o.SelfCollect {
		if o.ShippingStatus != orders.ShippingReadyForCollection {
			rep.ShippingStatus = orders.ShippingReadyForCollection
			patch.ShippingStatus = &rep.ShippingStatus
		}
		return false
	}

	key := o.ShipmentKey
	if key == "" {
		res, err := p.Carrier.CreateShipment(ctx, shipping.ShipmentRequest{
			Reference:    "shipment-" + o.ID,
			ReceiverName: o.UserID,
			Postcode:     o.Postcode,
			WeightGrams:  o.WeightGrams,
		})
		if err != nil {
			metrics.StageFailuresTotal.WithLabelValues("shipment").Inc()
			log.Error().Err(err).Str("order_id", o.ID).Msg("fulfillment: shipment creation failed")
			rep.Errors = append(rep.Errors, "shipment: "+err.Error())
			rep.ShippingStatus = orders.ShippingFailed
			patch.ShippingStatus = &rep.ShippingStatus
			return false
		}
		key = res.ShipmentKey
		rep.ShipmentKey = key
		patch.ShipmentKey = &rep.ShipmentKey
		rep.ShippingStatus = orders.ShippingReadyToShip
		patch.ShippingStatus = &rep.ShippingStatus
		if res.TrackingNo != "" {
			return p.storeTracking(rep, patch, res.TrackingNo)
		}
	}

	if o.TrackingSynced {
		return false
	}
	co, err := p.Tracking.Checkout(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("order_id", o.ID).Str("shipment_key", key).Msg("fulfillment: carrier checkout failed")
		rep.Errors = append(rep.Errors, "checkout: "+err.Error())
		return false
	}
	if co.TrackingNo != "" {
		return p.storeTracking(rep, patch, co.TrackingNo)
	}
	// checkout done, tracking pending: the tracker worker picks it up later
	return false
}

func (p *Pipeline) storeTracking(rep *Report, patch *orders.FulfillmentPatch, no string) bool {
	rep.TrackingNo = no
	patch.TrackingNo = &rep.TrackingNo
	t := true
	patch.TrackingSynced = &t
	return true
}

func (p *Pipeline) publishFulfilled(rep Report) {
	if p.Producer == nil {
		return
	}
	p.publish(p.Producer, orders.EventOrderFulfilled, rep.OrderID, orders.OrderFulfilledPayload{
		OrderID:        rep.OrderID,
		StockDeducted:  rep.StockDeducted,
		POSSyncStatus:  rep.POSSyncStatus,
		ShippingStatus: rep.ShippingStatus,
	})
}

func (p *Pipeline) publishReadyToShip(rep Report) {
	if p.ReadyToShip == nil {
		return
	}
	p.publish(p.ReadyToShip, orders.EventOrderReadyToShip, rep.OrderID, orders.OrderReadyToShipPayload{
		OrderID:     rep.OrderID,
		ShipmentKey: rep.ShipmentKey,
	})
}

func (p *Pipeline) publish(to Publisher, eventType, orderID string, payload any) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.ServiceName,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	to.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func toLines(items []orders.Item) []pos.Line {
	out := make([]pos.Line, 0, len(items))
	for _, it := range items {
		out = append(out, pos.Line{
			SKU:        it.SKU,
			Name:       it.Name,
			Qty:        it.Qty,
			PriceCents: it.PriceCents,
		})
	}
	return out
}
