package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLedger backs the stock ledger with Postgres. Counter reads lock their
// rows (FOR UPDATE), which serializes concurrent reservations per product;
// the losing transaction re-reads the winner's state and aborts on shortage.
type PGLedger struct{ DB *pgxpool.Pool }

func (l *PGLedger) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PGLedger) ExpiredReservations(ctx context.Context, cutoff time.Time) ([]Reservation, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT order_id, product_id, COALESCE(variant_sku,''), qty, expires_at, created_at
		FROM reservations
		WHERE status=$1 AND expires_at < $2
		ORDER BY expires_at, order_id`, ReservationReserved, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byOrder := map[string]*Reservation{}
	var order []string
	for rows.Next() {
		var orderID string
		var it ItemQty
		var expiresAt, createdAt time.Time
		if err := rows.Scan(&orderID, &it.ProductID, &it.VariantSKU, &it.Qty, &expiresAt, &createdAt); err != nil {
			return nil, err
		}
		r, ok := byOrder[orderID]
		if !ok {
			r = &Reservation{OrderID: orderID, Status: ReservationReserved, ExpiresAt: expiresAt, CreatedAt: createdAt}
			byOrder[orderID] = r
			order = append(order, orderID)
		}
		r.Items = append(r.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Reservation, 0, len(order))
	for _, id := range order {
		out = append(out, *byOrder[id])
	}
	return out, nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) Counters(ctx context.Context, productID, variantSKU string) (Counters, error) {
	var c Counters
	var err error
	if variantSKU != "" {
		err = t.tx.QueryRow(ctx, `
			SELECT on_hand, reserved FROM variants
			WHERE product_id=$1 AND sku=$2 FOR UPDATE`, productID, variantSKU).Scan(&c.OnHand, &c.Reserved)
	} else {
		err = t.tx.QueryRow(ctx, `
			SELECT on_hand, reserved FROM products
			WHERE id=$1 FOR UPDATE`, productID).Scan(&c.OnHand, &c.Reserved)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return Counters{}, fmt.Errorf("%w: product=%s variant=%s", ErrUnknownProduct, productID, variantSKU)
	}
	return c, err
}

func (t *pgTx) SetCounters(ctx context.Context, productID, variantSKU string, c Counters) error {
	if variantSKU != "" {
		_, err := t.tx.Exec(ctx, `
			UPDATE variants SET on_hand=$3, reserved=$4
			WHERE product_id=$1 AND sku=$2`, productID, variantSKU, c.OnHand, c.Reserved)
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE products SET on_hand=$2, reserved=$3, updated_at=now()
		WHERE id=$1`, productID, c.OnHand, c.Reserved)
	return err
}

func (t *pgTx) RecomputeParent(ctx context.Context, productID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE products SET
			on_hand  = (SELECT COALESCE(SUM(on_hand), 0)  FROM variants WHERE product_id=$1),
			reserved = (SELECT COALESCE(SUM(reserved), 0) FROM variants WHERE product_id=$1),
			updated_at = now()
		WHERE id=$1`, productID)
	return err
}

func (t *pgTx) InsertReservation(ctx context.Context, r Reservation) error {
	for _, it := range r.Items {
		ct, err := t.tx.Exec(ctx, `
			INSERT INTO reservations(id, order_id, product_id, variant_sku, qty, status, expires_at)
			VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7)
			ON CONFLICT (order_id, product_id, COALESCE(variant_sku,'')) DO NOTHING`,
			uuid.NewString(), r.OrderID, it.ProductID, it.VariantSKU, it.Qty, r.Status, r.ExpiresAt)
		if err != nil {
			return err
		}
		// a concurrent call for the same order inserted first; its hold is
		// the one that counts
		if ct.RowsAffected() == 0 {
			return errReservationExists
		}
	}
	return nil
}

func (t *pgTx) ActiveReservation(ctx context.Context, orderID string) (*Reservation, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT product_id, COALESCE(variant_sku,''), qty, expires_at, created_at
		FROM reservations
		WHERE order_id=$1 AND status=$2 FOR UPDATE`, orderID, ReservationReserved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var r *Reservation
	for rows.Next() {
		var it ItemQty
		var expiresAt, createdAt time.Time
		if err := rows.Scan(&it.ProductID, &it.VariantSKU, &it.Qty, &expiresAt, &createdAt); err != nil {
			return nil, err
		}
		if r == nil {
			r = &Reservation{OrderID: orderID, Status: ReservationReserved, ExpiresAt: expiresAt, CreatedAt: createdAt}
		}
		r.Items = append(r.Items, it)
	}
	return r, rows.Err()
}

func (t *pgTx) SetReservationStatus(ctx context.Context, orderID string, s ReservationStatus) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE reservations SET status=$2
		WHERE order_id=$1 AND status=$3`, orderID, s, ReservationReserved)
	return err
}

func (t *pgTx) AppendMovement(ctx context.Context, m Movement) error {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_movements(id, product_id, variant_sku, type, quantity,
			previous_quantity, new_quantity, reason, reference)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9)`,
		id, m.ProductID, m.VariantSKU, m.Type, m.Quantity,
		m.PreviousQuantity, m.NewQuantity, m.Reason, m.Reference)
	return err
}
