package pos

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/result"
)

// Line is one order line as the POS adapter sees it.
type Line struct {
	SKU        string
	Name       string
	Qty        int
	PriceCents int
}

// Syncer maps local SKUs to remote variant ids and drives receipt creation
// and remote inventory deduction against the POS.
type Syncer struct {
	API API
}

// ReceiptOutcome reports a receipt submission. Partial means at least one
// line had no remote counterpart and was dropped rather than aborting.
type ReceiptOutcome struct {
	ReceiptID string   `json:"receipt_id"`
	Partial   bool     `json:"partial"`
	Dropped   []string `json:"dropped,omitempty"` // SKUs without a remote mapping
}

// SubmitReceipt builds the POS receipt for an order's lines. Unmapped lines
// are dropped, a shipping-fee line is appended when shippingCents > 0, and
// reference doubles as the idempotency key.
func (s *Syncer) SubmitReceipt(ctx context.Context, reference string, lines []Line, shippingCents int) (ReceiptOutcome, error) {
	mapping, err := s.catalogBySKU(ctx)
	if err != nil {
		return ReceiptOutcome{}, err
	}

	var out ReceiptOutcome
	receipt := Receipt{Reference: reference}
	for _, l := range lines {
		variantID, ok := mapping[l.SKU]
		if !ok {
			out.Partial = true
			out.Dropped = append(out.Dropped, l.SKU)
			log.Warn().Str("sku", l.SKU).Str("reference", reference).Msg("pos: line has no remote variant, dropped")
			continue
		}
		receipt.Lines = append(receipt.Lines, ReceiptLine{
			VariantID:  variantID,
			Name:       l.Name,
			Qty:        l.Qty,
			PriceCents: l.PriceCents,
		})
		receipt.TotalCents += l.PriceCents * l.Qty
	}
	if shippingCents > 0 {
		receipt.Lines = append(receipt.Lines, ReceiptLine{Name: "Shipping fee", Qty: 1, PriceCents: shippingCents})
		receipt.TotalCents += shippingCents
	}

	id, err := s.API.CreateReceipt(ctx, receipt)
	if err != nil {
		return out, err
	}
	out.ReceiptID = id
	return out, nil
}

// DeductInventory issues one remote adjustment per line with a negative
// delta. Unmapped or failing lines are reported individually and never block
// their siblings; only a catalog-fetch failure fails the whole call.
func (s *Syncer) DeductInventory(ctx context.Context, lines []Line) (result.Batch, error) {
	mapping, err := s.catalogBySKU(ctx)
	if err != nil {
		return result.Batch{}, err
	}

	var batch result.Batch
	for _, l := range lines {
		variantID, ok := mapping[l.SKU]
		if !ok {
			batch.Add(result.ErrItem(l.SKU, result.KindUnmapped, "no remote variant for sku"))
			continue
		}
		if err := s.API.AdjustInventory(ctx, variantID, -l.Qty); err != nil {
			batch.Add(result.ErrItem(l.SKU, result.KindTransient, err.Error()))
			continue
		}
		batch.Add(result.OkItem(l.SKU))
	}
	return batch, nil
}

func (s *Syncer) catalogBySKU(ctx context.Context) (map[string]string, error) {
	items, err := s.API.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("pos: fetch catalog: %w", err)
	}
	m := make(map[string]string, len(items))
	for _, it := range items {
		m[it.SKU] = it.VariantID
	}
	return m, nil
}
