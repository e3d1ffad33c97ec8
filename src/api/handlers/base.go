package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"treasury/src/api/controllers"
	"treasury/src/utils"
)

const requestTimeout = 10 * time.Second

type Handler struct {
	Controller controllers.IController
	Logger     *logrus.Logger
}

func NewHandler(controller controllers.IController, logger *logrus.Logger) *Handler {
	return &Handler{Controller: controller, Logger: logger}
}

func Healthcheck(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "Im alive!")
}

func (h *Handler) respond(w http.ResponseWriter, _ *http.Request, data interface{}, status int) {
	res, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(res)
}

func (h *Handler) HandleErrors(w http.ResponseWriter, err error) {
	var httpErr *utils.HTTPError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.respond(w, nil, map[string]string{"error": "Request timed out"}, http.StatusGatewayTimeout)
	case errors.As(err, &httpErr):
		if httpErr.Code >= http.StatusInternalServerError {
			h.Logger.WithError(err).Error("Request failed")
		}
		h.respond(w, nil, map[string]string{"error": httpErr.Message}, httpErr.Code)
	case err != nil:
		h.Logger.WithError(err).Error("Request failed")
		h.respond(w, nil, map[string]string{"error": "Internal server error"}, http.StatusInternalServerError)
	default:
		h.respond(w, nil, map[string]string{"error": "Unhandled error"}, http.StatusInternalServerError)
	}
}

func withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
