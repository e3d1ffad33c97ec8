package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"treasury/src/clients/treasuries"
	"treasury/src/services"
	"treasury/src/worker/controllers"
)

const syncTimeout = 60 * time.Second

type Handler struct {
	Controller *controllers.Controller
}

func NewHandler(controller *controllers.Controller) *Handler {
	return &Handler{Controller: controller}
}

func Healthcheck(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Im alive!")
}

func (h *Handler) respond(w http.ResponseWriter, _ *http.Request, data interface{}, status int) {
	res, err := json.Marshal(data)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(res)
}

func (h *Handler) HandleErrors(w http.ResponseWriter, err error) {
	var rowErr *services.RowValidationError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		h.respond(w, nil, map[string]string{"error": "Request timed out"}, http.StatusGatewayTimeout)
	case errors.Is(err, services.ErrEntityNotFound):
		h.respond(w, nil, map[string]string{"error": err.Error()}, http.StatusNotFound)
	case errors.As(err, &rowErr):
		h.respond(w, nil, map[string]string{"error": err.Error()}, http.StatusUnprocessableEntity)
	case treasuries.IsUpstreamFailure(err):
		h.respond(w, nil, map[string]string{"error": err.Error()}, http.StatusBadGateway)
	case err != nil:
		h.Controller.Logger.WithError(err).Error("Worker request failed")
		h.respond(w, nil, map[string]string{"error": err.Error()}, http.StatusInternalServerError)
	default:
		h.respond(w, nil, map[string]string{"error": "Unhandled error"}, http.StatusInternalServerError)
	}
}

func (h *Handler) RunWarmup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), syncTimeout)
	defer cancel()

	if err := h.Controller.RunWarmup(ctx); err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, map[string]string{"status": "ok"}, http.StatusOK)
}

func (h *Handler) SyncEntity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), syncTimeout)
	defer cancel()

	entity, err := h.Controller.SyncEntity(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, entity, http.StatusOK)
}
