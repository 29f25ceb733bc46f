package fulfillment

import (
	"context"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/orders"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/pos"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/result"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/shipping"
)

type invFake struct {
	calls int
	err   error
}

func (f *invFake) Deduct(context.Context, string) error {
	f.calls++
	return f.err
}

type ordersFake struct {
	order    *orders.Order
	patches  []orders.FulfillmentPatch
	applyErr error
}

func (f *ordersFake) GetOrder(context.Context, string) (*orders.Order, error) {
	cp := *f.order
	return &cp, nil
}

func (f *ordersFake) ApplyFulfillment(_ context.Context, _ string, p orders.FulfillmentPatch) error {
	f.patches = append(f.patches, p)
	return f.applyErr
}

type posFake struct {
	receiptCalls int
	receiptErr   error
	outcome      pos.ReceiptOutcome

	deductCalls int
	deductErr   error
	batch       result.Batch
}

func (f *posFake) SubmitReceipt(context.Context, string, []pos.Line, int) (pos.ReceiptOutcome, error) {
	f.receiptCalls++
	return f.outcome, f.receiptErr
}

func (f *posFake) DeductInventory(context.Context, []pos.Line) (result.Batch, error) {
	f.deductCalls++
	return f.batch, f.deductErr
}

type carrierFake struct {
	calls int
	err   error
	res   shipping.ShipmentResult
}

func (f *carrierFake) CreateShipment(context.Context, shipping.ShipmentRequest) (shipping.ShipmentResult, error) {
	f.calls++
	return f.res, f.err
}

type checkoutFake struct {
	calls int
	err   error
	res   shipping.CheckoutResult
}

func (f *checkoutFake) Checkout(context.Context, string) (shipping.CheckoutResult, error) {
	f.calls++
	return f.res, f.err
}

type pubFake struct{ events int }

func (f *pubFake) Publish([]byte, []byte, ...kafkago.Header) { f.events++ }

func paidOrder() *orders.Order {
	return &orders.Order{
		ID:             "ord-1",
		UserID:         "u-1",
		Status:         orders.StatusPaid,
		ShippingCents:  800,
		Postcode:       "50000",
		WeightGrams:    500,
		POSSyncStatus:  orders.POSSyncPending,
		ShippingStatus: orders.ShippingPending,
		Items: []orders.Item{
			{OrderID: "ord-1", ProductID: "p1", SKU: "SKU-1", Name: "Widget", Qty: 2, PriceCents: 1500},
		},
	}
}

func newTestPipeline(o *orders.Order) (*Pipeline, *invFake, *ordersFake, *posFake, *carrierFake, *checkoutFake) {
	inv := &invFake{}
	ord := &ordersFake{order: o}
	ps := &posFake{
		outcome: pos.ReceiptOutcome{ReceiptID: "rcpt-1"},
		batch:   result.Batch{Items: []result.Item{result.OkItem("SKU-1")}},
	}
	car := &carrierFake{res: shipping.ShipmentResult{ShipmentKey: "shp-1"}}
	co := &checkoutFake{res: shipping.CheckoutResult{TrackingNo: "TRK-1"}}
	p := &Pipeline{Inventory: inv, Orders: ord, POS: ps, Carrier: car, Tracking: co, ServiceName: "test"}
	return p, inv, ord, ps, car, co
}

func TestPipelineHappyPath(t *testing.T) {
	p, inv, ord, ps, car, co := newTestPipeline(paidOrder())

	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)

	assert.True(t, rep.StockDeducted)
	assert.Equal(t, orders.POSSyncSynced, rep.POSSyncStatus)
	assert.Equal(t, "rcpt-1", rep.POSReceiptID)
	assert.True(t, rep.InventorySync.AllSucceeded())
	assert.Equal(t, orders.ShippingReadyToShip, rep.ShippingStatus)
	assert.Equal(t, "shp-1", rep.ShipmentKey)
	assert.Equal(t, "TRK-1", rep.TrackingNo)
	assert.Empty(t, rep.Errors)

	assert.Equal(t, 1, inv.calls)
	assert.Equal(t, 1, ps.receiptCalls)
	assert.Equal(t, 1, ps.deductCalls)
	assert.Equal(t, 1, car.calls)
	assert.Equal(t, 1, co.calls)

	require.Len(t, ord.patches, 1)
	patch := ord.patches[0]
	require.NotNil(t, patch.Status)
	assert.Equal(t, orders.StatusAwaitingPickup, *patch.Status)
	require.NotNil(t, patch.TrackingSynced)
	assert.True(t, *patch.TrackingSynced)
}

func TestPipelineRejectsUnpaid(t *testing.T) {
	for _, status := range []orders.Status{
		orders.StatusPending, orders.StatusCancelled, orders.StatusRefunded, orders.StatusExpired,
	} {
		o := paidOrder()
		o.Status = status
		p, inv, _, _, _, _ := newTestPipeline(o)
		_, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
		assert.Error(t, err, "status %s", status)
		assert.Zero(t, inv.calls)
	}
}

func TestPipelineRerunSkipsCompletedStages(t *testing.T) {
	o := paidOrder()
	o.Status = orders.StatusReadyToShip
	o.StockDeducted = true
	o.POSSyncStatus = orders.POSSyncSynced
	o.POSReceiptID = "rcpt-1"
	o.ShippingStatus = orders.ShippingReadyToShip
	o.ShipmentKey = "shp-1"
	o.TrackingNo = "TRK-1"
	o.TrackingSynced = true

	p, inv, ord, ps, car, co := newTestPipeline(o)
	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)

	assert.Zero(t, inv.calls, "deduction already done")
	assert.Zero(t, ps.receiptCalls, "receipt already synced")
	assert.Zero(t, ps.deductCalls)
	assert.Zero(t, car.calls, "shipment key already present")
	assert.Zero(t, co.calls, "tracking already resolved")
	assert.True(t, rep.StockDeducted)
	assert.Empty(t, rep.Errors)
	require.Len(t, ord.patches, 1)
	assert.Equal(t, orders.FulfillmentPatch{}, ord.patches[0], "nothing to change, empty patch")
}

func TestPipelineRerunRetriesOnlyFailedStages(t *testing.T) {
	o := paidOrder()
	o.Status = orders.StatusProcessing
	o.StockDeducted = true
	o.POSSyncStatus = orders.POSSyncFailed // previous run failed here
	o.ShippingStatus = orders.ShippingReadyToShip
	o.ShipmentKey = "shp-1"

	p, inv, _, ps, car, co := newTestPipeline(o)
	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)

	assert.Zero(t, inv.calls)
	assert.Equal(t, 1, ps.receiptCalls, "failed receipt is retried")
	assert.Equal(t, 1, ps.deductCalls)
	assert.Zero(t, car.calls)
	assert.Equal(t, 1, co.calls, "tracking still unresolved")
	assert.Equal(t, orders.POSSyncSynced, rep.POSSyncStatus)
}

func TestPipelinePOSFailureDoesNotBlockShipment(t *testing.T) {
	p, _, ord, ps, car, _ := newTestPipeline(paidOrder())
	ps.receiptErr = errors.New("pos down")
	ps.deductErr = errors.New("pos down")

	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err, "stage failures never abort the run")

	assert.Equal(t, orders.POSSyncFailed, rep.POSSyncStatus)
	assert.Equal(t, 1, car.calls, "shipment still created")
	assert.Equal(t, orders.ShippingReadyToShip, rep.ShippingStatus)
	assert.Len(t, rep.Errors, 2)

	require.Len(t, ord.patches, 1)
	require.NotNil(t, ord.patches[0].POSSyncStatus)
	assert.Equal(t, orders.POSSyncFailed, *ord.patches[0].POSSyncStatus)
}

func TestPipelinePartialReceiptMapping(t *testing.T) {
	p, _, _, ps, _, _ := newTestPipeline(paidOrder())
	ps.outcome = pos.ReceiptOutcome{ReceiptID: "rcpt-1", Partial: true, Dropped: []string{"SKU-X"}}

	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, orders.POSSyncPartial, rep.POSSyncStatus)
	assert.Equal(t, "rcpt-1", rep.POSReceiptID, "receipt id kept even when partial")
}

func TestPipelineInventorySyncFailureStaysRetryable(t *testing.T) {
	p, _, ord, ps, _, _ := newTestPipeline(paidOrder())
	ps.deductErr = errors.New("catalog down")

	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, orders.POSSyncPartial, rep.POSSyncStatus,
		"a receipt alone is not a full sync when the deduction never ran")
	require.Len(t, ord.patches, 1)
	require.NotNil(t, ord.patches[0].POSSyncStatus)
	assert.Equal(t, orders.POSSyncPartial, *ord.patches[0].POSSyncStatus)

	// re-run against the persisted flags once the POS is back
	o := paidOrder()
	o.Status = orders.StatusAwaitingPickup
	o.StockDeducted = true
	o.POSSyncStatus = *ord.patches[0].POSSyncStatus
	o.POSReceiptID = rep.POSReceiptID
	o.ShippingStatus = rep.ShippingStatus
	o.ShipmentKey = rep.ShipmentKey
	o.TrackingNo = rep.TrackingNo
	o.TrackingSynced = true
	ord.order = o
	ps.deductErr = nil

	rep2, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, 2, ps.deductCalls, "the failed deduction is attempted again")
	assert.Equal(t, orders.POSSyncSynced, rep2.POSSyncStatus)
}

func TestPipelinePartialInventorySyncDowngrades(t *testing.T) {
	p, _, _, ps, _, _ := newTestPipeline(paidOrder())
	ps.batch = result.Batch{Items: []result.Item{
		result.OkItem("SKU-1"),
		result.ErrItem("SKU-2", result.KindUnmapped, "no mapping"),
	}}

	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, orders.POSSyncPartial, rep.POSSyncStatus)
	assert.Len(t, rep.InventorySync.PartialFailures(), 1)
}

func TestPipelineSelfCollect(t *testing.T) {
	o := paidOrder()
	o.SelfCollect = true
	p, _, ord, _, car, co := newTestPipeline(o)

	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)

	assert.Zero(t, car.calls, "no courier shipment for self-collection")
	assert.Zero(t, co.calls)
	assert.Equal(t, orders.ShippingReadyForCollection, rep.ShippingStatus)
	require.Len(t, ord.patches, 1)
	require.NotNil(t, ord.patches[0].Status)
	assert.Equal(t, orders.StatusProcessing, *ord.patches[0].Status)
}

func TestPipelineShipmentFailure(t *testing.T) {
	p, _, _, _, car, co := newTestPipeline(paidOrder())
	car.err = errors.New("carrier timeout")

	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, orders.ShippingFailed, rep.ShippingStatus)
	assert.Empty(t, rep.ShipmentKey)
	assert.Zero(t, co.calls, "no checkout without a shipment key")
}

func TestPipelineTrackingPendingPublishesReadyToShip(t *testing.T) {
	p, _, _, _, _, co := newTestPipeline(paidOrder())
	co.res = shipping.CheckoutResult{Pending: true}
	fulfilled := &pubFake{}
	ready := &pubFake{}
	p.Producer = fulfilled
	p.ReadyToShip = ready

	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Empty(t, rep.TrackingNo)
	assert.Equal(t, orders.ShippingReadyToShip, rep.ShippingStatus)
	assert.Equal(t, 1, fulfilled.events)
	assert.Equal(t, 1, ready.events, "pending tracking hands off to the tracker worker")
}

func TestPipelineTrackingResolvedSkipsReadyToShipEvent(t *testing.T) {
	p, _, _, _, _, _ := newTestPipeline(paidOrder())
	fulfilled := &pubFake{}
	ready := &pubFake{}
	p.Producer = fulfilled
	p.ReadyToShip = ready

	_, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, 1, fulfilled.events)
	assert.Zero(t, ready.events)
}

func TestPipelineMergeWriteFailureIsReturned(t *testing.T) {
	p, _, ord, _, _, _ := newTestPipeline(paidOrder())
	ord.applyErr = errors.New("db down")

	rep, err := p.ProcessSuccessfulOrder(context.Background(), "ord-1")
	require.Error(t, err)
	assert.True(t, rep.StockDeducted, "report still describes what ran")
}
