package inventory

import (
	"context"
	"sync"
	"time"
)

// memLedger is a mutex-serialized stand-in for the row-locked transactions of
// the real store: InTx holds the lock for the whole callback, writes apply to
// a scratch copy and land only on commit.
type memLedger struct {
	mu           sync.Mutex
	counters     map[string]Counters // productID "/" variantSKU
	variants     map[string][]string // productID -> variant SKUs
	reservations map[string]Reservation
	movements    []Movement
}

func newMemLedger() *memLedger {
	return &memLedger{
		counters:     map[string]Counters{},
		variants:     map[string][]string{},
		reservations: map[string]Reservation{},
	}
}

func (l *memLedger) addProduct(productID string, c Counters) {
	l.counters[productID+"/"] = c
}

func (l *memLedger) addVariant(productID, sku string, c Counters) {
	l.counters[productID+"/"+sku] = c
	l.variants[productID] = append(l.variants[productID], sku)
	parent := Counters{}
	for _, v := range l.variants[productID] {
		vc := l.counters[productID+"/"+v]
		parent.OnHand += vc.OnHand
		parent.Reserved += vc.Reserved
	}
	l.counters[productID+"/"] = parent
}

func (l *memLedger) InTx(_ context.Context, fn func(tx Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &memTx{
		ledger:       l,
		counters:     map[string]Counters{},
		reservations: map[string]Reservation{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	for k, c := range tx.counters {
		l.counters[k] = c
	}
	for k, r := range tx.reservations {
		l.reservations[k] = r
	}
	l.movements = append(l.movements, tx.movements...)
	return nil
}

func (l *memLedger) ExpiredReservations(_ context.Context, cutoff time.Time) ([]Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Reservation
	for _, r := range l.reservations {
		if r.Status == ReservationReserved && r.ExpiresAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

type memTx struct {
	ledger       *memLedger
	counters     map[string]Counters
	reservations map[string]Reservation
	movements    []Movement
}

func (t *memTx) Counters(_ context.Context, productID, variantSKU string) (Counters, error) {
	k := productID + "/" + variantSKU
	if c, ok := t.counters[k]; ok {
		return c, nil
	}
	c, ok := t.ledger.counters[k]
	if !ok {
		return Counters{}, ErrUnknownProduct
	}
	return c, nil
}

func (t *memTx) SetCounters(_ context.Context, productID, variantSKU string, c Counters) error {
	t.counters[productID+"/"+variantSKU] = c
	return nil
}

func (t *memTx) RecomputeParent(ctx context.Context, productID string) error {
	sum := Counters{}
	for _, sku := range t.ledger.variants[productID] {
		c, err := t.Counters(ctx, productID, sku)
		if err != nil {
			return err
		}
		sum.OnHand += c.OnHand
		sum.Reserved += c.Reserved
	}
	t.counters[productID+"/"] = sum
	return nil
}

func (t *memTx) InsertReservation(_ context.Context, r Reservation) error {
	if _, ok := t.ledger.reservations[r.OrderID]; ok {
		return errReservationExists
	}
	t.reservations[r.OrderID] = r
	return nil
}

func (t *memTx) ActiveReservation(_ context.Context, orderID string) (*Reservation, error) {
	if r, ok := t.reservations[orderID]; ok {
		if r.Status == ReservationReserved {
			return &r, nil
		}
		return nil, nil
	}
	if r, ok := t.ledger.reservations[orderID]; ok && r.Status == ReservationReserved {
		return &r, nil
	}
	return nil, nil
}

func (t *memTx) SetReservationStatus(_ context.Context, orderID string, s ReservationStatus) error {
	r, ok := t.reservations[orderID]
	if !ok {
		r, ok = t.ledger.reservations[orderID]
		if !ok {
			return nil
		}
	}
	r.Status = s
	t.reservations[orderID] = r
	return nil
}

func (t *memTx) AppendMovement(_ context.Context, m Movement) error {
	t.movements = append(t.movements, m)
	return nil
}

func (l *memLedger) snapshot(productID, variantSKU string) Counters {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters[productID+"/"+variantSKU]
}

func (l *memLedger) reservation(orderID string) (Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reservations[orderID]
	return r, ok
}

func (l *memLedger) movementCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.movements)
}
