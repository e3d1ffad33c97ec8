package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"treasury/src/schemas"
	"treasury/src/utils"
)

func (h *Handler) GetEntities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	entities, err := h.Controller.GetEntities(ctx)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, entities, http.StatusOK)
}

func (h *Handler) GetEntityBalanceSheet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	rows, err := h.Controller.GetEntityBalanceSheet(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, rows, http.StatusOK)
}

func (h *Handler) GetEntityTimeSeries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	series, err := h.Controller.GetEntityTimeSeries(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, series, http.StatusOK)
}

func (h *Handler) GetAdminEntities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	entities, err := h.Controller.GetAdminEntities(ctx, r.URL.Query().Get("type"))
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, entities, http.StatusOK)
}

func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	var input schemas.EntityInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.HandleErrors(w, utils.BadRequest("invalid request body: "+err.Error()))
		return
	}

	entity, err := h.Controller.CreateEntity(ctx, input)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, entity, http.StatusCreated)
}

func (h *Handler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	var input schemas.EntityUpdate
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.HandleErrors(w, utils.BadRequest("invalid request body: "+err.Error()))
		return
	}

	entity, err := h.Controller.UpdateEntity(ctx, chi.URLParam(r, "slug"), input)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, entity, http.StatusOK)
}

func (h *Handler) SyncEntity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()

	entity, err := h.Controller.SyncEntity(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, entity, http.StatusOK)
}
