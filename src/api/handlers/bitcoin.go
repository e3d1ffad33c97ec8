package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	history, err := h.Controller.GetPriceHistory(ctx)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, history, http.StatusOK)
}

func (h *Handler) GetSpotPrice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	price, err := h.Controller.GetSpotPrice(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, price, http.StatusOK)
}

func (h *Handler) GetAggregateHoldings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	points, err := h.Controller.GetAggregateHoldings(ctx)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, points, http.StatusOK)
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	summary, err := h.Controller.GetSummary(ctx)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, summary, http.StatusOK)
}
