package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

const shopOrigin = "https://shop.example"

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	cat, err := catalog.LoadFile("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	hours := availability.Hours{
		Location:    time.UTC,
		Open:        availability.Clock{Hour: 10},
		Close:       availability.Clock{Hour: 20},
		Granularity: 30 * time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore(time.UTC, outbox.NewQueue())
	return newHTTPHandler(routerDeps{
		cfg: settings.Config{
			Hours:          hours,
			StaffJWTSecret: "test-secret",
			CORSOrigins:    []string{shopOrigin},
		},
		catalog: cat,
		booking: booking.NewService(cat, availability.NewCalculator(hours), store, logger, nil, booking.Config{HorizonDays: 14}),
		manager: lifecycle.NewManager(store, logger, nil),
		limiter: httpx.NewRateLimiter(100, time.Minute),
		logger:  logger,
	})
}

func preflight(h http.Handler, target, method string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, target, nil)
	req.Header.Set("Origin", shopOrigin)
	req.Header.Set("Access-Control-Request-Method", method)
	req.Header.Set("Access-Control-Request-Headers", "content-type, authorization")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func TestPreflightReachesCORSBeforeRouting(t *testing.T) {
	h := newTestHandler(t)
	for _, target := range []string{"/api/v1/public/book", "/api/v1/appointments/abc/cancel", "/api/v1/appointments"} {
		rw := preflight(h, target, http.MethodPost)
		if rw.Code != http.StatusNoContent {
			t.Fatalf("%s: expected 204, got %d", target, rw.Code)
		}
		if got := rw.Header().Get("Access-Control-Allow-Origin"); got != shopOrigin {
			t.Fatalf("%s: unexpected allow origin %q", target, got)
		}
	}
}

func TestCrossOriginBookingCarriesCORSHeaders(t *testing.T) {
	h := newTestHandler(t)
	body := `{"service_id":"haircut","date":"` + time.Now().UTC().AddDate(0, 0, 1).Format(time.DateOnly) +
		`","time":"11:00","customer_name":"Alice Martin","customer_phone":"+33612345678","locale":"fr"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bytes.NewBufferString(body))
	req.Header.Set("Origin", shopOrigin)
	req.Header.Set("Content-Type", "application/json")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != shopOrigin {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestStaffRoutesRequireToken(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/stats", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Code)
	}

	tok, err := auth.SignHS256(auth.Claims{Sub: "staff-1", Role: auth.RoleStaff, Exp: time.Now().Add(time.Hour).Unix()}, "test-secret")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments/stats", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Origin", shopOrigin)
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != shopOrigin {
		t.Fatalf("staff responses should carry CORS headers, got %q", got)
	}
}
