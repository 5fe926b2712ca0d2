package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/notification-service/internal/api"
	"github.com/md-rashed-zaman/slotbook/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/slotbook/services/notification-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotbook/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/slotbook/services/notification-service/internal/messages"
	"github.com/md-rashed-zaman/slotbook/services/notification-service/internal/sms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	brokersRaw, err := config.RequiredString("KAFKA_BROKERS")
	if err != nil {
		panic(err)
	}
	brokers := kafkax.SplitBrokers(brokersRaw)

	loc, err := time.LoadLocation(config.String("SHOP_TIMEZONE", "Europe/Paris"))
	if err != nil {
		panic(err)
	}

	checks := []runtime.ReadyCheck{{Name: "kafka", Check: kafkax.ReadyCheck(brokers)}}
	var dedup consumer.Inbox
	if dbURL := config.String("DATABASE_URL", ""); dbURL != "" {
		pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 4})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		dedup = inbox.NewRepository(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		logger.Warn("DATABASE_URL not set; duplicate detection is in-memory only")
		dedup = inbox.NewMemory(10000)
	}

	var sender sms.Sender = sms.LogSender{Logger: logger}
	switch strings.ToLower(config.String("SMS_PROVIDER", "log")) {
	case "webhook":
		ws, err := sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
		if err != nil {
			panic(err)
		}
		sender = ws
	case "log":
	default:
		logger.Warn("unknown SMS_PROVIDER; messages are only logged")
	}

	reader := consumer.NewReader(consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics: config.List("KAFKA_CONSUME_TOPICS", []string{
			messages.TopicAppointmentBooked,
			messages.TopicAppointmentCancelled,
			messages.TopicReminderDue,
		}),
	})
	dispatcher := dispatch.New(sender, loc, logger)
	eventConsumer := consumer.New(logger, reader, dedup, dispatcher.Handle)
	go eventConsumer.Run(ctx)

	r := runtime.NewRouterWithProbes(checks...)
	if secret := config.String("STAFF_JWT_SECRET", ""); secret != "" {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(secret, auth.RoleStaff, auth.RoleOwner))
			r.Use(httpx.WithBodyLimit(4 << 10))
			api.NewCustomSMSHandler(sender, logger).Routes(r)
		})
	} else {
		logger.Warn("STAFF_JWT_SECRET not set; staff SMS endpoint disabled")
	}
	handler := httpx.Chain(r,
		httpx.WithCORS(httpx.PublicCORS(config.List("CORS_ALLOWED_ORIGINS", nil))),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "sms_provider", sender.ProviderID())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
