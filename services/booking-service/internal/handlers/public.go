package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/catalog"
)

// PublicHandler serves the customer booking flow. No authentication.
type PublicHandler struct {
	catalog *catalog.Catalog
	booking *booking.Service
	logger  *slog.Logger
}

func NewPublicHandler(cat *catalog.Catalog, svc *booking.Service, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{catalog: cat, booking: svc, logger: logger}
}

func (h *PublicHandler) Routes(r chi.Router) {
	r.Get("/api/v1/public/services", h.Services)
	r.Get("/api/v1/public/dates", h.Dates)
	r.Get("/api/v1/public/slots", h.Slots)
	r.Post("/api/v1/public/book", h.Book)
}

type serviceItem struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	DurationMinutes int           `json:"duration_minutes,omitempty"`
	Price           catalog.Price `json:"price"`
	Bookable        bool          `json:"bookable"`
}

func (h *PublicHandler) Services(w http.ResponseWriter, r *http.Request) {
	locale := catalog.NormalizeLocale(r.URL.Query().Get("locale"))
	services := h.catalog.List()
	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		items = append(items, serviceItem{
			ID:              s.ID,
			Name:            s.Name(locale),
			DurationMinutes: int(s.Duration.Minutes()),
			Price:           s.Price,
			Bookable:        s.Bookable(),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": items})
}

func (h *PublicHandler) Dates(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"dates": h.booking.BookableDates()})
}

type slotsResponse struct {
	ServiceID string   `json:"service_id"`
	Date      string   `json:"date"`
	Slots     []string `json:"slots"`
}

func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service_id"))
	date := strings.TrimSpace(q.Get("date"))
	if serviceID == "" || date == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "service_id and date are required", Code: "invalid_request"})
		return
	}
	slots, err := h.booking.Availability(r.Context(), serviceID, date)
	if err != nil {
		h.writeBookingError(w, r, err, nil)
		return
	}
	if slots == nil {
		slots = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{ServiceID: serviceID, Date: date, Slots: slots})
}

func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req booking.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid json body", Code: "invalid_request"})
		return
	}
	appt, err := h.booking.Submit(r.Context(), req)
	if err != nil {
		h.writeBookingError(w, r, err, &req)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appt)
}

// writeBookingError maps orchestrator errors onto HTTP. A taken slot carries
// the refreshed availability so the client can offer another time.
func (h *PublicHandler) writeBookingError(w http.ResponseWriter, r *http.Request, err error, req *booking.Request) {
	var verr *booking.ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: verr.Error(), Code: "invalid_field", Field: verr.Field})
	case errors.Is(err, booking.ErrUnknownService):
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: err.Error(), Code: "unknown_service", Field: "service_id"})
	case errors.Is(err, booking.ErrSlotTaken):
		body := httpx.ErrorBody{Error: err.Error(), Code: "slot_taken"}
		if req != nil {
			if slots, aerr := h.booking.Availability(r.Context(), req.ServiceID, req.Date); aerr == nil {
				if slots == nil {
					slots = []string{}
				}
				body.Details = map[string]any{"slots": slots}
			}
		}
		httpx.WriteError(w, http.StatusConflict, body)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusServiceUnavailable, httpx.ErrorBody{Error: "temporarily unavailable, retry", Code: "unavailable"})
	}
}
