package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationsTotal counts reservation attempts by result (ok|shortage|error).
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_reservations_total",
		Help: "Stock reservation attempts by result.",
	}, []string{"result"})

	// StageFailuresTotal counts fulfillment pipeline stage failures.
	StageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_fulfillment_stage_failures_total",
		Help: "Fulfillment stage failures by stage.",
	}, []string{"stage"})

	// TrackingSyncTotal counts tracking resolution attempts by result (resolved|pending|error).
	TrackingSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_tracking_sync_total",
		Help: "Courier tracking sync attempts by result.",
	}, []string{"result"})

	// MovementsTotal counts recorded stock movements by type.
	MovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_stock_movements_total",
		Help: "Stock movements recorded by type.",
	}, []string{"type"})
)
