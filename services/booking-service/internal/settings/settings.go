// Package settings assembles booking-service configuration from the environment.
package settings

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
)

type Config struct {
	Port     string
	GRPCPort string
	LogLevel string

	// DatabaseURL empty selects the in-memory store.
	DatabaseURL  string
	RedisAddr    string
	KafkaBrokers []string

	Hours        availability.Hours
	HorizonDays  int
	CatalogFile  string
	ReminderLead time.Duration
	SweepEvery   time.Duration
	OutboxPoll   time.Duration

	StaffJWTSecret     string
	CORSOrigins        []string
	RateLimitPerMinute int
	FeedBuffer         int
}

func Load() (Config, error) {
	var (
		cfg Config
		err error
	)
	if cfg.Port, err = config.Port("PORT", "8080"); err != nil {
		return Config{}, err
	}
	if cfg.GRPCPort, err = config.Port("GRPC_PORT", "9090"); err != nil {
		return Config{}, err
	}
	cfg.LogLevel = config.String("LOG_LEVEL", "info")
	cfg.DatabaseURL = config.String("DATABASE_URL", "")
	cfg.RedisAddr = config.String("REDIS_ADDR", "")
	cfg.KafkaBrokers = kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	cfg.CatalogFile = config.String("CATALOG_FILE", "")

	if cfg.Hours, err = loadHours(); err != nil {
		return Config{}, err
	}
	if cfg.HorizonDays, err = config.Int("BOOKING_HORIZON_DAYS", 14); err != nil {
		return Config{}, err
	}
	if cfg.HorizonDays < 1 {
		return Config{}, fmt.Errorf("BOOKING_HORIZON_DAYS must be at least 1")
	}
	if cfg.ReminderLead, err = config.Duration("REMINDER_LEAD", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SweepEvery, err = config.Duration("REMINDER_SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPoll, err = config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.StaffJWTSecret, err = config.RequiredString("STAFF_JWT_SECRET"); err != nil {
		return Config{}, err
	}
	cfg.CORSOrigins = config.List("CORS_ALLOWED_ORIGINS", nil)
	if cfg.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return Config{}, err
	}
	if cfg.FeedBuffer, err = config.Int("CHANGEFEED_BUFFER", 64); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadHours() (availability.Hours, error) {
	tz := config.String("SHOP_TIMEZONE", "Europe/Paris")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return availability.Hours{}, fmt.Errorf("SHOP_TIMEZONE: %w", err)
	}
	open, err := availability.ParseClock(config.String("SHOP_OPEN", "10:00"))
	if err != nil {
		return availability.Hours{}, fmt.Errorf("SHOP_OPEN: %w", err)
	}
	closeAt, err := availability.ParseClock(config.String("SHOP_CLOSE", "20:00"))
	if err != nil {
		return availability.Hours{}, fmt.Errorf("SHOP_CLOSE: %w", err)
	}
	step, err := config.Duration("SLOT_GRANULARITY", 30*time.Minute)
	if err != nil {
		return availability.Hours{}, err
	}
	var closed []time.Weekday
	for _, name := range config.List("SHOP_CLOSED_DAYS", []string{"sunday"}) {
		if name == "none" {
			continue
		}
		wd, err := availability.ParseWeekday(name)
		if err != nil {
			return availability.Hours{}, fmt.Errorf("SHOP_CLOSED_DAYS: %w", err)
		}
		closed = append(closed, wd)
	}
	h := availability.Hours{
		Location:    loc,
		Open:        open,
		Close:       closeAt,
		Granularity: step,
		ClosedDays:  closed,
	}
	return h, h.Validate()
}
