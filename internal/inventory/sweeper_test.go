package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expirerStub struct {
	expired []string
	fail    map[string]error
}

func (e *expirerStub) MarkExpired(_ context.Context, orderID string) error {
	if err := e.fail[orderID]; err != nil {
		return err
	}
	e.expired = append(e.expired, orderID)
	return nil
}

func TestSweepReleasesOnlyExpired(t *testing.T) {
	l := newMemLedger()
	l.addProduct("p1", Counters{OnHand: 10, Reserved: 5})
	svc := NewService(l)
	now := time.Now()

	l.reservations["ord-old"] = Reservation{
		OrderID:   "ord-old",
		Items:     []ItemQty{{ProductID: "p1", Qty: 3}},
		Status:    ReservationReserved,
		ExpiresAt: now.Add(-5 * time.Minute),
	}
	l.reservations["ord-fresh"] = Reservation{
		OrderID:   "ord-fresh",
		Items:     []ItemQty{{ProductID: "p1", Qty: 2}},
		Status:    ReservationReserved,
		ExpiresAt: now.Add(20 * time.Minute),
	}

	exp := &expirerStub{}
	sw := &Sweeper{Inventory: svc, Orders: exp, Now: func() time.Time { return now }}
	rep, err := sw.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Scanned: 1, Released: 1}, rep)
	assert.Equal(t, []string{"ord-old"}, exp.expired)
	assert.Equal(t, Counters{OnHand: 10, Reserved: 2}, l.snapshot("p1", ""), "fresh hold survives")

	res, _ := l.reservation("ord-old")
	assert.Equal(t, ReservationReleased, res.Status)
	res, _ = l.reservation("ord-fresh")
	assert.Equal(t, ReservationReserved, res.Status)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	l := newMemLedger()
	l.addProduct("p1", Counters{OnHand: 10, Reserved: 4})
	svc := NewService(l)
	now := time.Now()

	for _, id := range []string{"ord-a", "ord-b"} {
		l.reservations[id] = Reservation{
			OrderID:   id,
			Items:     []ItemQty{{ProductID: "p1", Qty: 2}},
			Status:    ReservationReserved,
			ExpiresAt: now.Add(-time.Minute),
		}
	}

	exp := &expirerStub{fail: map[string]error{"ord-a": errors.New("db down")}}
	sw := &Sweeper{Inventory: svc, Orders: exp, Now: func() time.Time { return now }}
	rep, err := sw.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Scanned)
	assert.Equal(t, 1, rep.Released)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, []string{"ord-b"}, exp.expired)
}
