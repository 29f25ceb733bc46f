package pos

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/result"
)

type posStub struct {
	catalog    []CatalogItem
	catalogErr error

	receipts   []Receipt
	receiptErr error

	adjustments map[string]int
	adjustFail  map[string]error
}

func (s *posStub) ListCatalog(context.Context) ([]CatalogItem, error) {
	return s.catalog, s.catalogErr
}

func (s *posStub) CreateReceipt(_ context.Context, r Receipt) (string, error) {
	if s.receiptErr != nil {
		return "", s.receiptErr
	}
	s.receipts = append(s.receipts, r)
	return "rcpt-1", nil
}

func (s *posStub) AdjustInventory(_ context.Context, variantID string, delta int) error {
	if err := s.adjustFail[variantID]; err != nil {
		return err
	}
	if s.adjustments == nil {
		s.adjustments = map[string]int{}
	}
	s.adjustments[variantID] += delta
	return nil
}

var testCatalog = []CatalogItem{
	{SKU: "SKU-1", VariantID: "v-1"},
	{SKU: "SKU-2", VariantID: "v-2"},
}

func TestSubmitReceipt(t *testing.T) {
	stub := &posStub{catalog: testCatalog}
	sy := &Syncer{API: stub}

	out, err := sy.SubmitReceipt(context.Background(), "receipt-ord-1", []Line{
		{SKU: "SKU-1", Name: "Widget", Qty: 2, PriceCents: 1500},
		{SKU: "SKU-2", Name: "Gadget", Qty: 1, PriceCents: 900},
	}, 800)
	require.NoError(t, err)
	assert.Equal(t, "rcpt-1", out.ReceiptID)
	assert.False(t, out.Partial)

	require.Len(t, stub.receipts, 1)
	r := stub.receipts[0]
	assert.Equal(t, "receipt-ord-1", r.Reference)
	require.Len(t, r.Lines, 3, "two items plus the shipping fee line")
	assert.Equal(t, "v-1", r.Lines[0].VariantID)
	assert.Equal(t, "Shipping fee", r.Lines[2].Name)
	assert.Empty(t, r.Lines[2].VariantID)
	assert.Equal(t, 2*1500+900+800, r.TotalCents)
}

func TestSubmitReceiptDropsUnmappedLines(t *testing.T) {
	stub := &posStub{catalog: testCatalog}
	sy := &Syncer{API: stub}

	out, err := sy.SubmitReceipt(context.Background(), "receipt-ord-1", []Line{
		{SKU: "SKU-1", Name: "Widget", Qty: 1, PriceCents: 1500},
		{SKU: "SKU-GHOST", Name: "Unknown", Qty: 1, PriceCents: 100},
	}, 0)
	require.NoError(t, err, "an unmapped line degrades the receipt, it does not abort it")
	assert.True(t, out.Partial)
	assert.Equal(t, []string{"SKU-GHOST"}, out.Dropped)

	require.Len(t, stub.receipts, 1)
	require.Len(t, stub.receipts[0].Lines, 1)
	assert.Equal(t, 1500, stub.receipts[0].TotalCents, "dropped line excluded from the total")
}

func TestSubmitReceiptNoShippingLine(t *testing.T) {
	stub := &posStub{catalog: testCatalog}
	sy := &Syncer{API: stub}

	_, err := sy.SubmitReceipt(context.Background(), "receipt-ord-1",
		[]Line{{SKU: "SKU-1", Qty: 1, PriceCents: 500}}, 0)
	require.NoError(t, err)
	require.Len(t, stub.receipts[0].Lines, 1, "no fee line for self-collection orders")
}

func TestSubmitReceiptCatalogFailure(t *testing.T) {
	stub := &posStub{catalogErr: errors.New("timeout")}
	sy := &Syncer{API: stub}
	_, err := sy.SubmitReceipt(context.Background(), "r", []Line{{SKU: "SKU-1", Qty: 1}}, 0)
	assert.Error(t, err)
	assert.Empty(t, stub.receipts)
}

func TestDeductInventoryPerLineOutcomes(t *testing.T) {
	stub := &posStub{
		catalog:    testCatalog,
		adjustFail: map[string]error{"v-2": errors.New("500")},
	}
	sy := &Syncer{API: stub}

	batch, err := sy.DeductInventory(context.Background(), []Line{
		{SKU: "SKU-1", Qty: 3},
		{SKU: "SKU-2", Qty: 1},
		{SKU: "SKU-GHOST", Qty: 2},
	})
	require.NoError(t, err, "per-line failures never fail the call")
	assert.False(t, batch.AllSucceeded())

	require.Len(t, batch.Items, 3)
	assert.True(t, batch.Items[0].OK)
	assert.Equal(t, result.KindTransient, batch.Items[1].Kind)
	assert.Equal(t, result.KindUnmapped, batch.Items[2].Kind)

	assert.Equal(t, -3, stub.adjustments["v-1"], "deduction is a negative delta")
	assert.Equal(t, "1/3 items ok", batch.Summary())
}

func TestDeductInventoryCatalogFailure(t *testing.T) {
	stub := &posStub{catalogErr: errors.New("timeout")}
	sy := &Syncer{API: stub}
	_, err := sy.DeductInventory(context.Background(), []Line{{SKU: "SKU-1", Qty: 1}})
	assert.Error(t, err)
}
