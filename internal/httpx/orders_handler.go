package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/fulfillment"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/inventory"
	kafkax "github.com/shahruladnn-prog/rudark-web-sub000/internal/kafka"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/orders"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/payment"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/redisx"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/result"
)

type OrdersHandler struct {
	Repo           *orders.Repo
	Inventory      *inventory.Service
	Gateway        payment.Gateway
	Verifier       *payment.Verifier
	Pipeline       *fulfillment.Pipeline
	Producer       *kafkax.Producer // order.created
	Redis          *redis.Client
	Service        string
	ReservationTTL time.Duration
}

type CheckoutReq struct {
	ExternalID    string                `json:"external_id"`
	UserID        string                `json:"user_id"`
	Items         []orders.ItemInputSKU `json:"items"`
	SelfCollect   bool                  `json:"self_collect"`
	Postcode      string                `json:"postcode"`
	WeightGrams   int                   `json:"weight_grams"`
	ShippingCents int                   `json:"shipping_cents"`
}

type CheckoutResp struct {
	result.Result
	OrderID     string               `json:"order_id,omitempty"`
	TotalCents  int                  `json:"total_cents,omitempty"`
	CheckoutURL string               `json:"checkout_url,omitempty"`
	Idempotent  bool                 `json:"idempotent,omitempty"`
	Shortages   []inventory.Shortage `json:"shortages,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/reprocess", h.reprocess)
	r.Post("/payments/webhook", h.paymentWebhook)
	r.Post("/payments/{purchaseID}/verify", h.verifyPayment)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFail(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, result.Fail(format, args...))
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ExternalID == "" || req.UserID == "" || len(req.Items) == 0 {
		writeFail(w, http.StatusBadRequest, "missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, existed, err := h.Repo.CreateCheckout(ctx, orders.CheckoutInput{
		ExternalID:    req.ExternalID,
		UserID:        req.UserID,
		Items:         req.Items,
		SelfCollect:   req.SelfCollect,
		Postcode:      req.Postcode,
		WeightGrams:   req.WeightGrams,
		ShippingCents: req.ShippingCents,
	})
	if err != nil {
		writeFail(w, http.StatusBadRequest, "%s", err)
		return
	}
	if existed {
		writeJSON(w, http.StatusOK, CheckoutResp{
			Result: result.Ok(), OrderID: o.ID, TotalCents: o.TotalCents, Idempotent: true,
		})
		return
	}

	items := make([]inventory.ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, inventory.ItemQty{ProductID: it.ProductID, VariantSKU: it.VariantSKU, Qty: it.Qty})
	}
	if err := h.Inventory.Reserve(ctx, o.ID, items, h.ReservationTTL); err != nil {
		_ = h.Repo.MarkCancelled(ctx, o.ID)
		var se *inventory.ShortageError
		if errors.As(err, &se) {
			writeJSON(w, http.StatusConflict, CheckoutResp{
				Result:    result.Fail("insufficient stock"),
				OrderID:   o.ID,
				Shortages: se.Shortages,
			})
			return
		}
		writeFail(w, http.StatusInternalServerError, "%s", err)
		return
	}

	purchase, err := h.Gateway.CreatePurchase(ctx, payment.PurchaseRequest{
		Reference:   o.ID,
		AmountCents: o.TotalCents,
	})
	if err != nil {
		// give the hold back instead of stranding it behind a dead purchase
		if rerr := h.Inventory.Release(ctx, o.ID); rerr != nil {
			log.Error().Err(rerr).Str("order_id", o.ID).Msg("release after purchase failure")
		}
		_ = h.Repo.MarkCancelled(ctx, o.ID)
		writeFail(w, http.StatusBadGateway, "create purchase: %s", err)
		return
	}
	if err := h.Repo.SetPurchase(ctx, o.ID, purchase.ID); err != nil {
		writeFail(w, http.StatusInternalServerError, "%s", err)
		return
	}

	idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, req.ExternalID)
	_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, statusKey, `{"status":"PENDING"}`, redisx.TTLStatusCache).Err()

	h.publishCreated(r, o)

	writeJSON(w, http.StatusAccepted, CheckoutResp{
		Result:      result.Ok(),
		OrderID:     o.ID,
		TotalCents:  o.TotalCents,
		CheckoutURL: purchase.CheckoutURL,
	})
}

func (h *OrdersHandler) publishCreated(r *http.Request, o *orders.Order) {
	if h.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:    o.ID,
			ExternalID: o.ExternalID,
			UserID:     o.UserID,
			TotalCents: o.TotalCents,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeFail(w, http.StatusBadRequest, "missing id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeFail(w, http.StatusNotFound, "not found")
			return
		}
		writeFail(w, http.StatusInternalServerError, "%s", err)
		return
	}

	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, statusKey, fmt.Sprintf(`{"status":%q}`, o.Status), redisx.TTLStatusCache).Err()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"order_id":        o.ID,
		"status":          o.Status,
		"total_cents":     o.TotalCents,
		"stock_deducted":  o.StockDeducted,
		"pos_sync_status": o.POSSyncStatus,
		"shipping_status": o.ShippingStatus,
		"tracking_no":     o.TrackingNo,
		"items":           o.Items,
	})
}

// reprocess re-runs the fulfillment pipeline for an order whose flags show a
// failed stage. This is the operator's manual recovery path.
func (h *OrdersHandler) reprocess(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	rep, err := h.Pipeline.ProcessSuccessfulOrder(ctx, orderID)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": rep})
}

type webhookReq struct {
	PurchaseID string `json:"purchase_id"`
}

// paymentWebhook handles the gateway's at-least-once callbacks; duplicates
// are cut off early via a redis dedup key before any gateway round trip.
func (h *OrdersHandler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PurchaseID == "" {
		writeFail(w, http.StatusBadRequest, "invalid payload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	dkey := fmt.Sprintf(redisx.KeyDedup, "webhook", req.PurchaseID)
	if seen, _ := redisx.Exists(ctx, h.Redis, dkey); seen {
		writeJSON(w, http.StatusOK, result.Ok())
		return
	}

	out, err := h.Verifier.VerifyPayment(ctx, req.PurchaseID)
	if err != nil {
		writeFail(w, http.StatusBadGateway, "%s", err)
		return
	}
	if out.Triggered {
		_ = h.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "outcome": out})
}

func (h *OrdersHandler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseID")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	out, err := h.Verifier.VerifyPayment(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeFail(w, http.StatusNotFound, "unknown purchase")
			return
		}
		writeFail(w, http.StatusBadGateway, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "outcome": out})
}
