// Package api exposes the staff-facing HTTP surface of the notification
// service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/notification-service/internal/sms"
)

const maxMessageLen = 480

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// CustomSMSHandler lets staff text a customer directly, outside the booking
// event flow.
type CustomSMSHandler struct {
	sender sms.Sender
	logger *slog.Logger
}

func NewCustomSMSHandler(sender sms.Sender, logger *slog.Logger) *CustomSMSHandler {
	return &CustomSMSHandler{sender: sender, logger: logger}
}

func (h *CustomSMSHandler) Routes(r chi.Router) {
	r.Post("/api/v1/sms", h.Send)
}

type customSMSRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type customSMSResponse struct {
	Provider string `json:"provider"`
	Status   string `json:"status"`
}

func (h *CustomSMSHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req customSMSRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "invalid json body", Code: "invalid_request"})
		return
	}
	phone := strings.ReplaceAll(strings.TrimSpace(req.Phone), " ", "")
	if !e164.MatchString(phone) {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "phone must be in international format", Code: "invalid_field", Field: "phone"})
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" || utf8.RuneCountInString(msg) > maxMessageLen {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Error: "message is empty or too long", Code: "invalid_field", Field: "message"})
		return
	}

	if err := h.sender.Send(r.Context(), phone, msg); err != nil {
		h.logger.ErrorContext(r.Context(), "custom sms failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusBadGateway, httpx.ErrorBody{Error: "sms provider unavailable", Code: "provider_error"})
		return
	}
	staff := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		staff = claims.Sub
	}
	h.logger.InfoContext(r.Context(), "custom sms sent", "staff", staff, "provider", h.sender.ProviderID())
	httpx.WriteJSON(w, http.StatusAccepted, customSMSResponse{Provider: h.sender.ProviderID(), Status: "sent"})
}
