package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/shahruladnn-prog/rudark-web-sub000/internal/kafka"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/orders"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/shipping"
)

type ShippingHandler struct {
	Carrier  shipping.API
	Tracking *shipping.Tracking
	Repo     *orders.Repo
	Producer *kafkax.Producer // order.shipped; nil disables
	Service  string
}

func (h *ShippingHandler) Register(r *chi.Mux) {
	r.Post("/shipping/rates", h.rates)
	r.Post("/orders/{id}/tracking/sync", h.syncOrder)
	r.Post("/tracking/sync", h.batchSync)
	r.Post("/orders/{id}/shipped", h.markShipped)
	r.Post("/orders/{id}/collected", h.markCollected)
}

type ratesReq struct {
	Postcode    string `json:"postcode"`
	WeightGrams int    `json:"weight_grams"`
}

func (h *ShippingHandler) rates(w http.ResponseWriter, r *http.Request) {
	var req ratesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Postcode == "" || req.WeightGrams <= 0 {
		writeFail(w, http.StatusBadRequest, "postcode and weight_grams required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rates, err := h.Carrier.CheckPrice(ctx, req.Postcode, req.WeightGrams)
	if err != nil {
		writeFail(w, http.StatusBadGateway, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rates": rates})
}

func (h *ShippingHandler) syncOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	fr, err := h.Tracking.SyncOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeFail(w, http.StatusNotFound, "not found")
			return
		}
		writeFail(w, http.StatusBadGateway, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tracking": fr})
}

func (h *ShippingHandler) batchSync(w http.ResponseWriter, r *http.Request) {
	// batch pace is deliberate (rate-limit respect), so allow a long window
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	rep, err := h.Tracking.BatchSync(ctx)
	if err != nil {
		writeFail(w, http.StatusInternalServerError, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": rep})
}

// markShipped is the operator/scan action moving an order out the door.
func (h *ShippingHandler) markShipped(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Repo.UpdateStatus(ctx, orderID, orders.StatusShipped); err != nil {
		switch {
		case errors.Is(err, orders.ErrNotFound):
			writeFail(w, http.StatusNotFound, "not found")
		case errors.Is(err, orders.ErrBadTransition):
			writeFail(w, http.StatusConflict, "%s", err)
		default:
			writeFail(w, http.StatusInternalServerError, "%s", err)
		}
		return
	}

	if h.Producer != nil {
		o, err := h.Repo.GetOrder(ctx, orderID)
		if err == nil {
			ev := orders.Envelope{
				EventID:       uuid.NewString(),
				EventType:     orders.EventOrderShipped,
				EventVersion:  1,
				OccurredAt:    time.Now().UTC(),
				Producer:      h.Service,
				CorrelationID: orderID,
				Payload: kafkax.MustMarshal(orders.OrderShippedPayload{
					OrderID:    orderID,
					TrackingNo: o.TrackingNo,
				}),
			}
			h.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
				kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderShipped)},
				kafkago.Header{Key: "x-event-version", Value: []byte("1")},
			)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order_id": orderID, "status": orders.StatusShipped})
}

// markCollected closes out a self-collection order once the customer picks it
// up at the counter; these orders never pass through the shipping states.
func (h *ShippingHandler) markCollected(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Repo.UpdateStatus(ctx, orderID, orders.StatusCompleted); err != nil {
		switch {
		case errors.Is(err, orders.ErrNotFound):
			writeFail(w, http.StatusNotFound, "not found")
		case errors.Is(err, orders.ErrBadTransition):
			writeFail(w, http.StatusConflict, "%s", err)
		default:
			writeFail(w, http.StatusInternalServerError, "%s", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order_id": orderID, "status": orders.StatusCompleted})
}
