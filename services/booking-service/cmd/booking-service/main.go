package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/libs/grpcx"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/libs/runtime"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/changefeed"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/reminders"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	cfg, err := settings.Load()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, cfg.LogLevel)

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

	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		logger.Error("catalog load failed", "err", err, "path", cfg.CatalogFile)
		panic(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var checks []runtime.ReadyCheck

	var writer outbox.MessageWriter = outbox.LogWriter{Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		kw := outbox.NewKafkaWriter(cfg.KafkaBrokers)
		defer kw.Close()
		writer = kw
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; notification events are only logged")
	}

	// System of record. Without DATABASE_URL the service runs on the
	// in-memory store, which loses state on restart.
	var (
		store     storage.Store
		publisher *outbox.Publisher
		queue     *outbox.Queue
	)
	outboxRepo := outbox.NewRepository()
	pubCfg := outbox.PublisherConfig{PollEvery: cfg.OutboxPoll, BatchSize: 50}
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		store = storage.NewPostgresStore(pool, outboxRepo, cfg.Hours.Location)
		publisher = outbox.NewPublisher(pool, outboxRepo, writer, logger, m, pubCfg)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory appointment store")
		queue = outbox.NewQueue()
		store = storage.NewMemoryStore(cfg.Hours.Location, queue)
		publisher = outbox.NewPublisher(nil, outboxRepo, writer, logger, m, pubCfg)
	}

	hub := changefeed.NewHub(cfg.FeedBuffer, logger, m)
	defer hub.Close()
	var feed changefeed.Publisher = hub
	var limiter httpx.Limiter = httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		bridge := changefeed.NewRedisBridge(rdb, config.String("CHANGEFEED_CHANNEL", changefeed.DefaultChannel), hub, logger)
		if err := bridge.Subscribe(ctx); err != nil {
			logger.Error("redis subscribe failed", "err", err)
			panic(err)
		}
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("redis change feed stopped", "err", err)
			}
		}()
		feed = bridge
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "slotbook:ratelimit:")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: bridge.ReadyCheck})
	}
	store = storage.NewNotifying(store, feed)

	calc := availability.NewCalculator(cfg.Hours)
	bookingSvc := booking.NewService(cat, calc, store, logger, m, booking.Config{
		HorizonDays:  cfg.HorizonDays,
		ReminderLead: cfg.ReminderLead,
	})
	manager := lifecycle.NewManager(store, logger, m)
	sweeper := reminders.NewSweeper(store, logger, m, reminders.Config{
		Lead:     cfg.ReminderLead,
		Interval: cfg.SweepEvery,
	})

	go sweeper.Run(ctx)
	if queue != nil {
		go publisher.RunQueue(ctx, queue)
	} else {
		go publisher.Run(ctx)
	}

	health := grpcx.NewHealthServer(service, logger)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		logger.Info("grpc health server starting", "addr", lis.Addr().String())
		if err := health.Serve(ctx, lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	httpHandler := newHTTPHandler(routerDeps{
		cfg:      cfg,
		registry: reg,
		checks:   checks,
		catalog:  cat,
		booking:  bookingSvc,
		manager:  manager,
		hub:      hub,
		limiter:  limiter,
		logger:   logger,
	})
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr,
			"timezone", cfg.Hours.Location.String(),
			"open", cfg.Hours.Open.String(),
			"close", cfg.Hours.Close.String(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()
	health.SetServing(true)

	<-ctx.Done()
	health.SetServing(false)
	shutdown(srv, logger)
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
