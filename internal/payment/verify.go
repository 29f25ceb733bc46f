package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/fulfillment"
	kafkax "github.com/shahruladnn-prog/rudark-web-sub000/internal/kafka"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/orders"
)

type Orders interface {
	GetOrderByPurchase(ctx context.Context, purchaseID string) (*orders.Order, error)
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) error
}

type Processor interface {
	ProcessSuccessfulOrder(ctx context.Context, orderID string) (fulfillment.Report, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Verifier confirms gateway payment state and hands a freshly paid order to
// the fulfillment pipeline exactly once.
type Verifier struct {
	Gateway     Gateway
	Orders      Orders
	Pipeline    Processor
	Producer    Publisher // order.paid events; nil disables
	ServiceName string
	Now         func() time.Time
}

type VerifyOutcome struct {
	OrderID       string        `json:"order_id"`
	OrderStatus   orders.Status `json:"order_status"`
	GatewayStatus string        `json:"gateway_status,omitempty"`
	// Triggered is true only when this call flipped the order to PAID and ran
	// the pipeline.
	Triggered bool `json:"triggered"`
}

// VerifyPayment maps the gateway's "paid" state to local PAID. An order that
// is already past PENDING returns early without re-triggering fulfillment, so
// repeated webhooks or manual verifies stay harmless.
func (v *Verifier) VerifyPayment(ctx context.Context, purchaseID string) (VerifyOutcome, error) {
	o, err := v.Orders.GetOrderByPurchase(ctx, purchaseID)
	if err != nil {
		return VerifyOutcome{}, err
	}
	if o.Status != orders.StatusPending {
		return VerifyOutcome{OrderID: o.ID, OrderStatus: o.Status}, nil
	}

	p, err := v.Gateway.GetPurchase(ctx, purchaseID)
	if err != nil {
		return VerifyOutcome{OrderID: o.ID, OrderStatus: o.Status}, err
	}
	if p.Status != StatusPaid {
		return VerifyOutcome{OrderID: o.ID, OrderStatus: o.Status, GatewayStatus: p.Status}, nil
	}

	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	if err := v.Orders.MarkPaid(ctx, o.ID, now()); err != nil {
		if errors.Is(err, orders.ErrBadTransition) {
			// lost the race against a concurrent confirmation
			return VerifyOutcome{OrderID: o.ID, OrderStatus: o.Status, GatewayStatus: p.Status}, nil
		}
		return VerifyOutcome{}, err
	}
	log.Info().Str("order_id", o.ID).Str("purchase_id", purchaseID).Msg("payment confirmed")
	v.publishPaid(o)

	if _, err := v.Pipeline.ProcessSuccessfulOrder(ctx, o.ID); err != nil {
		// payment is already captured and recorded; fulfillment recovery is
		// manual from here
		log.Error().Err(err).Str("order_id", o.ID).Msg("fulfillment pipeline failed after payment")
	}
	return VerifyOutcome{OrderID: o.ID, OrderStatus: orders.StatusPaid, GatewayStatus: p.Status, Triggered: true}, nil
}

func (v *Verifier) publishPaid(o *orders.Order) {
	if v.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPaid,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      v.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderPaidPayload{
			OrderID:     o.ID,
			PurchaseID:  o.PurchaseID,
			AmountCents: o.TotalCents,
		}),
	}
	v.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPaid)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
