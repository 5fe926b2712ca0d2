package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

// StaffHandler serves the dashboard. Callers mount it behind auth.RequireRole.
type StaffHandler struct {
	lifecycle *lifecycle.Manager
	feed      http.Handler
	loc       *time.Location
	logger    *slog.Logger
}

func NewStaffHandler(mgr *lifecycle.Manager, feed http.Handler, loc *time.Location, logger *slog.Logger) *StaffHandler {
	return &StaffHandler{lifecycle: mgr, feed: feed, loc: loc, logger: logger}
}

func (h *StaffHandler) Routes(r chi.Router) {
	r.Get("/api/v1/appointments", h.List)
	r.Get("/api/v1/appointments/stats", h.Stats)
	r.Post("/api/v1/appointments/{id}/cancel", h.Cancel)
	if h.feed != nil {
		r.Method(http.MethodGet, "/api/v1/changes", h.feed)
	}
}

type listResponse struct {
	Filter       lifecycle.View      `json:"filter"`
	Appointments []model.Appointment `json:"appointments"`
}

func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := lifecycle.ParseView(strings.TrimSpace(q.Get("filter")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: err.Error(), Code: "invalid_field", Field: "filter"})
		return
	}
	from, err := h.parseBound(q.Get("from"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "from must be RFC3339 or YYYY-MM-DD", Code: "invalid_field", Field: "from"})
		return
	}
	to, err := h.parseBound(q.Get("to"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "to must be RFC3339 or YYYY-MM-DD", Code: "invalid_field", Field: "to"})
		return
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "to must be after from", Code: "invalid_field", Field: "to"})
		return
	}

	appts, err := h.lifecycle.List(r.Context(), view, from, to)
	if err != nil {
		h.unavailable(w, r, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Filter: view, Appointments: appts})
}

func (h *StaffHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.lifecycle.Stats(r.Context())
	if err != nil {
		h.unavailable(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *StaffHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		http.Error(w, "missing appointment id", http.StatusBadRequest)
		return
	}
	appt, err := h.lifecycle.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, httpx.ErrorBody{Error: "appointment not found", Code: "not_found"})
		return
	case err != nil:
		h.unavailable(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

// parseBound accepts an instant or a shop-local calendar date.
func (h *StaffHandler) parseBound(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, raw, h.loc)
}

func (h *StaffHandler) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "request failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	httpx.WriteError(w, http.StatusServiceUnavailable, httpx.ErrorBody{Error: "temporarily unavailable, retry", Code: "unavailable"})
}
