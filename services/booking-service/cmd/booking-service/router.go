package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/changefeed"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/settings"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routerDeps struct {
	cfg      settings.Config
	registry *prometheus.Registry
	checks   []runtime.ReadyCheck
	catalog  *catalog.Catalog
	booking  *booking.Service
	manager  *lifecycle.Manager
	hub      *changefeed.Hub
	limiter  httpx.Limiter
	logger   *slog.Logger
}

// newHTTPHandler builds the full HTTP stack. CORS wraps the router so
// preflights are answered before chi matches a method.
func newHTTPHandler(d routerDeps) http.Handler {
	r := runtime.NewRouterWithProbes(d.checks...)
	if d.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	}
	r.Group(func(r chi.Router) {
		r.Use(httpx.WithRateLimit(d.limiter, d.logger, true))
		r.Use(httpx.WithBodyLimit(16 << 10))
		r.Use(httpx.WithTimeout(10 * time.Second))
		handlers.NewPublicHandler(d.catalog, d.booking, d.logger).Routes(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(d.cfg.StaffJWTSecret, auth.RoleStaff, auth.RoleOwner))
		var feed http.Handler
		if d.hub != nil {
			feed = changefeed.NewHandler(d.hub, d.logger, d.cfg.CORSOrigins)
		}
		handlers.NewStaffHandler(d.manager, feed, d.cfg.Hours.Location, d.logger).Routes(r)
	})

	return httpx.Chain(r,
		httpx.WithCORS(httpx.PublicCORS(d.cfg.CORSOrigins)),
		httpx.WithRequestID,
		httpx.WithAccessLog(d.logger),
	)
}
