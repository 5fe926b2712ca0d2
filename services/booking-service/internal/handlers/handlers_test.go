package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type testServer struct {
	router http.Handler
	store  *storage.MemoryStore
	date   string
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	cat, err := catalog.LoadFile("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	// Open every day so the tests do not depend on the weekday they run on.
	hours := availability.Hours{
		Location:    time.UTC,
		Open:        availability.Clock{Hour: 10},
		Close:       availability.Clock{Hour: 20},
		Granularity: 30 * time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemoryStore(time.UTC, outbox.NewQueue())
	svc := booking.NewService(cat, availability.NewCalculator(hours), store, logger, nil, booking.Config{HorizonDays: 14})
	mgr := lifecycle.NewManager(store, logger, nil)

	r := chi.NewRouter()
	NewPublicHandler(cat, svc, logger).Routes(r)
	NewStaffHandler(mgr, nil, time.UTC, logger).Routes(r)
	return testServer{
		router: r,
		store:  store,
		date:   time.Now().UTC().AddDate(0, 0, 1).Format(time.DateOnly),
	}
}

func (s testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rdr)
	rw := httptest.NewRecorder()
	s.router.ServeHTTP(rw, req)
	return rw
}

func (s testServer) book(clock string) booking.Request {
	return booking.Request{
		ServiceID:     "haircut",
		Date:          s.date,
		Time:          clock,
		CustomerName:  "Alice Martin",
		CustomerPhone: "+33612345678",
		Locale:        "en",
	}
}

func decode[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rw.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rw.Body.String(), err)
	}
	return v
}

func TestServicesLocalized(t *testing.T) {
	s := newTestServer(t)
	rw := s.do(t, http.MethodGet, "/api/v1/public/services?locale=en", nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	got := decode[struct {
		Services []serviceItem `json:"services"`
	}](t, rw)
	if len(got.Services) != 9 {
		t.Fatalf("expected 9 services, got %d", len(got.Services))
	}
	first := got.Services[0]
	if first.ID != "haircut" || first.Name != "Haircut" || first.DurationMinutes != 30 || !first.Bookable {
		t.Fatalf("unexpected first service %+v", first)
	}
	last := got.Services[len(got.Services)-1]
	if last.Bookable || !last.Price.OnRequest {
		t.Fatalf("private events should be on request and not bookable: %+v", last)
	}

	rw = s.do(t, http.MethodGet, "/api/v1/public/services?locale=en-GB", nil)
	regional := decode[struct {
		Services []serviceItem `json:"services"`
	}](t, rw)
	if regional.Services[0].Name != "Haircut" {
		t.Fatalf("en-GB should resolve to English names, got %q", regional.Services[0].Name)
	}
}

func TestSlotsRequiresParams(t *testing.T) {
	s := newTestServer(t)
	rw := s.do(t, http.MethodGet, "/api/v1/public/slots?service_id=haircut", nil)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	rw = s.do(t, http.MethodGet, "/api/v1/public/slots?service_id=perm&date="+s.date, nil)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown service, got %d", rw.Code)
	}
	if body := decode[httpx.ErrorBody](t, rw); body.Code != "unknown_service" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestBookThenSlotDisappears(t *testing.T) {
	s := newTestServer(t)

	rw := s.do(t, http.MethodGet, "/api/v1/public/slots?service_id=haircut&date="+s.date, nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	before := decode[slotsResponse](t, rw)
	if len(before.Slots) != 20 || !slices.Contains(before.Slots, "14:00") {
		t.Fatalf("unexpected slots %v", before.Slots)
	}

	rw = s.do(t, http.MethodPost, "/api/v1/public/book", s.book("14:00"))
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	appt := decode[model.Appointment](t, rw)
	if appt.ID == "" || appt.Status != model.StatusConfirmed || appt.ServiceLabel != "Haircut" {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if got := appt.EndTime.Sub(appt.StartTime); got != 30*time.Minute {
		t.Fatalf("expected 30m appointment, got %s", got)
	}

	rw = s.do(t, http.MethodGet, "/api/v1/public/slots?service_id=haircut&date="+s.date, nil)
	after := decode[slotsResponse](t, rw)
	if slices.Contains(after.Slots, "14:00") || !slices.Contains(after.Slots, "13:30") || !slices.Contains(after.Slots, "14:30") {
		t.Fatalf("unexpected slots after booking %v", after.Slots)
	}
}

func TestBookConflictReturnsFreshSlots(t *testing.T) {
	s := newTestServer(t)
	if rw := s.do(t, http.MethodPost, "/api/v1/public/book", s.book("14:00")); rw.Code != http.StatusCreated {
		t.Fatalf("first booking: %d", rw.Code)
	}

	rw := s.do(t, http.MethodPost, "/api/v1/public/book", s.book("14:00"))
	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rw.Code)
	}
	body := decode[struct {
		Code    string `json:"code"`
		Details struct {
			Slots []string `json:"slots"`
		} `json:"details"`
	}](t, rw)
	if body.Code != "slot_taken" {
		t.Fatalf("unexpected code %q", body.Code)
	}
	if len(body.Details.Slots) == 0 || slices.Contains(body.Details.Slots, "14:00") {
		t.Fatalf("expected refreshed slots without 14:00, got %v", body.Details.Slots)
	}
}

func TestBookValidation(t *testing.T) {
	s := newTestServer(t)

	badPhone := s.book("11:00")
	badPhone.CustomerPhone = "0612"
	privateEvent := s.book("11:00")
	privateEvent.ServiceID = "private-event"
	offGrid := s.book("11:10")

	cases := []struct {
		name  string
		req   booking.Request
		field string
	}{
		{"phone", badPhone, "customer_phone"},
		{"not bookable", privateEvent, "service_id"},
		{"off grid", offGrid, "time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rw := s.do(t, http.MethodPost, "/api/v1/public/book", tc.req)
			if rw.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rw.Code)
			}
			if body := decode[httpx.ErrorBody](t, rw); body.Field != tc.field {
				t.Fatalf("expected field %q, got %+v", tc.field, body)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bytes.NewBufferString("{not json"))
	rw := httptest.NewRecorder()
	s.router.ServeHTTP(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rw.Code)
	}
}

func TestStaffListCancelAndStats(t *testing.T) {
	s := newTestServer(t)
	rw := s.do(t, http.MethodPost, "/api/v1/public/book", s.book("15:00"))
	if rw.Code != http.StatusCreated {
		t.Fatalf("book: %d", rw.Code)
	}
	appt := decode[model.Appointment](t, rw)

	rw = s.do(t, http.MethodGet, "/api/v1/appointments?filter=upcoming", nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("list: %d", rw.Code)
	}
	list := decode[listResponse](t, rw)
	if len(list.Appointments) != 1 || list.Appointments[0].ID != appt.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	for i := 0; i < 2; i++ {
		rw = s.do(t, http.MethodPost, "/api/v1/appointments/"+appt.ID+"/cancel", nil)
		if rw.Code != http.StatusOK {
			t.Fatalf("cancel #%d: %d", i+1, rw.Code)
		}
		if got := decode[model.Appointment](t, rw); got.Status != model.StatusCancelled {
			t.Fatalf("expected cancelled, got %s", got.Status)
		}
	}

	rw = s.do(t, http.MethodGet, "/api/v1/appointments?filter=cancelled&from="+s.date, nil)
	if list := decode[listResponse](t, rw); len(list.Appointments) != 1 {
		t.Fatalf("expected one cancelled appointment, got %+v", list)
	}

	rw = s.do(t, http.MethodGet, "/api/v1/appointments/stats", nil)
	stats := decode[storage.Stats](t, rw)
	if stats.Total != 1 || stats.Cancelled != 1 || stats.Upcoming != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	// The slot is free again once cancelled.
	if rw := s.do(t, http.MethodPost, "/api/v1/public/book", s.book("15:00")); rw.Code != http.StatusCreated {
		t.Fatalf("rebook after cancel: %d", rw.Code)
	}
}

func TestStaffErrors(t *testing.T) {
	s := newTestServer(t)
	if rw := s.do(t, http.MethodPost, "/api/v1/appointments/missing/cancel", nil); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
	if rw := s.do(t, http.MethodGet, "/api/v1/appointments?filter=someday", nil); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad filter, got %d", rw.Code)
	}
	if rw := s.do(t, http.MethodGet, "/api/v1/appointments?from=yesterday", nil); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad bound, got %d", rw.Code)
	}
}
