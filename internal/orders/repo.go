package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ItemInputSKU struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

type CheckoutInput struct {
	ExternalID    string
	UserID        string
	Items         []ItemInputSKU
	SelfCollect   bool
	Postcode      string
	WeightGrams   int
	ShippingCents int
}

type Repo struct{ DB *pgxpool.Pool }

var (
	ErrNotFound      = errors.New("order not found")
	ErrBadTransition = errors.New("invalid status transition")
)

const orderCols = `id, external_id, user_id, status, total_cents, shipping_cents,
	self_collect, postcode, weight_grams, purchase_id, stock_deducted,
	pos_sync_status, pos_receipt_id, shipping_status, shipment_key, tracking_no,
	tracking_synced, paid_at, created_at, updated_at`

// CreateCheckout inserts a PENDING order with its lines, pricing each line from
// the catalog (never trusting client prices). Idempotent via external_id: an
// existing order is returned with existed=true.
func (r *Repo) CreateCheckout(ctx context.Context, in CheckoutInput) (o *Order, existed bool, err error) {
	if existing, err := r.GetOrderByExternalID(ctx, in.ExternalID); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	skus := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Qty <= 0 {
			return nil, false, fmt.Errorf("invalid qty for sku=%s", it.SKU)
		}
		skus = append(skus, it.SKU)
	}

	type line struct {
		productID  string
		variantSKU string
		name       string
		priceCents int
	}
	bySKU := map[string]line{}

	rows, err := tx.Query(ctx, `SELECT sku, id, name, price_cents FROM products WHERE sku = ANY($1)`, skus)
	if err != nil {
		return nil, false, err
	}
	for rows.Next() {
		var sku string
		var l line
		if err := rows.Scan(&sku, &l.productID, &l.name, &l.priceCents); err != nil {
			rows.Close()
			return nil, false, err
		}
		bySKU[sku] = l
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	rows, err = tx.Query(ctx, `
		SELECT v.sku, v.product_id, v.name, p.price_cents
		FROM variants v JOIN products p ON p.id = v.product_id
		WHERE v.sku = ANY($1)`, skus)
	if err != nil {
		return nil, false, err
	}
	for rows.Next() {
		var sku string
		var l line
		if err := rows.Scan(&sku, &l.productID, &l.name, &l.priceCents); err != nil {
			rows.Close()
			return nil, false, err
		}
		l.variantSKU = sku
		bySKU[sku] = l
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	total := in.ShippingCents
	items := make([]Item, 0, len(in.Items))
	for _, it := range in.Items {
		l, ok := bySKU[it.SKU]
		if !ok {
			return nil, false, fmt.Errorf("product not found: sku=%s", it.SKU)
		}
		total += l.priceCents * it.Qty
		items = append(items, Item{
			ProductID:  l.productID,
			VariantSKU: l.variantSKU,
			SKU:        it.SKU,
			Name:       l.name,
			Qty:        it.Qty,
			PriceCents: l.priceCents,
		})
	}

	orderID := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, external_id, user_id, status, total_cents, shipping_cents,
			self_collect, postcode, weight_grams, pos_sync_status, shipping_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		orderID, in.ExternalID, in.UserID, StatusPending, total, in.ShippingCents,
		in.SelfCollect, in.Postcode, in.WeightGrams, POSSyncPending, ShippingPending,
	)
	if err != nil {
		return nil, false, err
	}

	for i := range items {
		items[i].OrderID = orderID
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, variant_sku, sku, name, qty, price_cents)
			VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7)`,
			orderID, items[i].ProductID, items[i].VariantSKU, items[i].SKU,
			items[i].Name, items[i].Qty, items[i].PriceCents,
		)
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	return &Order{
		ID:             orderID,
		ExternalID:     in.ExternalID,
		UserID:         in.UserID,
		Status:         StatusPending,
		TotalCents:     total,
		ShippingCents:  in.ShippingCents,
		SelfCollect:    in.SelfCollect,
		Postcode:       in.Postcode,
		WeightGrams:    in.WeightGrams,
		POSSyncStatus:  POSSyncPending,
		ShippingStatus: ShippingPending,
		Items:          items,
	}, false, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return r.getOrderBy(ctx, `id=$1`, orderID)
}

func (r *Repo) GetOrderByExternalID(ctx context.Context, externalID string) (*Order, error) {
	return r.getOrderBy(ctx, `external_id=$1`, externalID)
}

func (r *Repo) GetOrderByPurchase(ctx context.Context, purchaseID string) (*Order, error) {
	return r.getOrderBy(ctx, `purchase_id=$1`, purchaseID)
}

func (r *Repo) getOrderBy(ctx context.Context, where string, arg any) (*Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE `+where, arg)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) GetOrderStatus(ctx context.Context, orderID string) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, orderID).Scan(&s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return Status(s), nil
}

func (r *Repo) SetPurchase(ctx context.Context, orderID, purchaseID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET purchase_id=$2, updated_at=now() WHERE id=$1`, orderID, purchaseID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid flips PENDING -> PAID. The WHERE guard makes a concurrent or
// repeated confirmation a no-op reported as ErrBadTransition.
func (r *Repo) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, paid_at=$3, updated_at=now()
		WHERE id=$1 AND status=$4`,
		orderID, StatusPaid, paidAt, StatusPending)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrBadTransition
	}
	return nil
}

func (r *Repo) UpdateStatus(ctx context.Context, orderID string, to Status) error {
	cur, err := r.GetOrderStatus(ctx, orderID)
	if err != nil {
		return err
	}
	if !CanTransition(cur, to) {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, cur, to)
	}
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1 AND status=$3`,
		orderID, to, cur)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrBadTransition
	}
	return nil
}

// FulfillmentPatch is a merge-write: only non-nil fields are persisted,
// untouched columns keep their values.
type FulfillmentPatch struct {
	Status         *Status
	StockDeducted  *bool
	POSSyncStatus  *POSSyncStatus
	POSReceiptID   *string
	ShippingStatus *ShippingStatus
	ShipmentKey    *string
	TrackingNo     *string
	TrackingSynced *bool
}

func (r *Repo) ApplyFulfillment(ctx context.Context, orderID string, p FulfillmentPatch) error {
	set := ""
	args := []any{orderID}
	add := func(col string, v any) {
		args = append(args, v)
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s=$%d", col, len(args))
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.StockDeducted != nil {
		add("stock_deducted", *p.StockDeducted)
	}
	if p.POSSyncStatus != nil {
		add("pos_sync_status", *p.POSSyncStatus)
	}
	if p.POSReceiptID != nil {
		add("pos_receipt_id", *p.POSReceiptID)
	}
	if p.ShippingStatus != nil {
		add("shipping_status", *p.ShippingStatus)
	}
	if p.ShipmentKey != nil {
		add("shipment_key", *p.ShipmentKey)
	}
	if p.TrackingNo != nil {
		add("tracking_no", *p.TrackingNo)
	}
	if p.TrackingSynced != nil {
		add("tracking_synced", *p.TrackingSynced)
	}
	if set == "" {
		return nil
	}
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET `+set+`, updated_at=now() WHERE id=$1`, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

// ListForTrackingSync returns orders staged at the carrier that still lack a
// resolved tracking number.
func (r *Repo) ListForTrackingSync(ctx context.Context) ([]*Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders
		WHERE tracking_synced = false AND shipping_status = $1
		ORDER BY created_at`, ShippingReadyToShip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MarkExpired flips a still-PENDING order to EXPIRED; anything else is left alone.
func (r *Repo) MarkExpired(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1 AND status=$3`,
		orderID, StatusExpired, StatusPending)
	return err
}

func (r *Repo) MarkCancelled(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1 AND status=$3`,
		orderID, StatusCancelled, StatusPending)
	return err
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, sku, name, price_cents, on_hand, reserved,
		has_variants, created_at, updated_at FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.OnHand, &p.Reserved,
			&p.HasVariants, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) loadItems(ctx context.Context, o *Order) error {
	rows, err := r.DB.Query(ctx, `SELECT order_id, product_id, COALESCE(variant_sku,''),
		sku, name, qty, price_cents FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.VariantSKU, &it.SKU,
			&it.Name, &it.Qty, &it.PriceCents); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var purchaseID, posReceiptID, shipmentKey, trackingNo *string
	err := row.Scan(&o.ID, &o.ExternalID, &o.UserID, &o.Status, &o.TotalCents, &o.ShippingCents,
		&o.SelfCollect, &o.Postcode, &o.WeightGrams, &purchaseID, &o.StockDeducted,
		&o.POSSyncStatus, &posReceiptID, &o.ShippingStatus, &shipmentKey, &trackingNo,
		&o.TrackingSynced, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if purchaseID != nil {
		o.PurchaseID = *purchaseID
	}
	if posReceiptID != nil {
		o.POSReceiptID = *posReceiptID
	}
	if shipmentKey != nil {
		o.ShipmentKey = *shipmentKey
	}
	if trackingNo != nil {
		o.TrackingNo = *trackingNo
	}
	return &o, nil
}
