package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shahruladnn-prog/rudark-web-sub000/internal/inventory"
	"github.com/shahruladnn-prog/rudark-web-sub000/internal/orders"
)

type StockHandler struct {
	Inventory *inventory.Service
	Sweeper   *inventory.Sweeper
	Repo      *orders.Repo
}

func (h *StockHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Post("/stock/movements", h.recordMovement)
	r.Post("/stock/sweep", h.sweep)
}

func (h *StockHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Repo.ListProducts(ctx)
	if err != nil {
		writeFail(w, http.StatusInternalServerError, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": ps})
}

// recordMovement is the operator surface for every non-checkout stock change:
// receipts, adjustments, damage write-offs, transfers, returns.
func (h *StockHandler) recordMovement(w http.ResponseWriter, r *http.Request) {
	var in inventory.MovementInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.ProductID == "" {
		writeFail(w, http.StatusBadRequest, "missing product_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	m, err := h.Inventory.RecordMovement(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, inventory.ErrInsufficientStock):
			writeFail(w, http.StatusConflict, "%s", err)
		case errors.Is(err, inventory.ErrUnknownProduct):
			writeFail(w, http.StatusNotFound, "%s", err)
		default:
			writeFail(w, http.StatusBadRequest, "%s", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "movement": m})
}

// sweep releases stale checkout holds on demand.
func (h *StockHandler) sweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	rep, err := h.Sweeper.Sweep(ctx)
	if err != nil {
		writeFail(w, http.StatusInternalServerError, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "report": rep})
}
